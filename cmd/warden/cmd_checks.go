package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/internal/config"
)

type checksOptions struct {
	provider   string
	services   []string
	severities []string
	tags       []string
	output     string
}

// checkInfo is the listed form of one check.
type checkInfo struct {
	ID          string   `json:"id"`
	Provider    string   `json:"provider"`
	Service     string   `json:"service"`
	Severity    string   `json:"severity"`
	Tags        []string `json:"tags,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Risk        string   `json:"risk,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
	Frameworks  []string `json:"frameworks,omitempty"`
}

func newChecksCmd(_ *rootOptions) *cobra.Command {
	o := &checksOptions{}
	cmd := &cobra.Command{
		Use:   "checks",
		Short: "List the check catalog",
		Example: `  warden checks                       # Every check
  warden checks --provider gcp
  warden checks --severity critical -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.provider, "provider", "", "Only list checks of this provider")
	f.StringSliceVar(&o.services, "service", nil, "Only list checks of these services")
	f.StringSliceVar(&o.severities, "severity", nil, "Only list checks of these severities")
	f.StringSliceVar(&o.tags, "tag", nil, "Only list checks carrying one of these tags")
	f.StringVarP(&o.output, "output", "o", "table", "Output format: table, json")
	return cmd
}

func (o *checksOptions) run(out io.Writer) error {
	reg, err := buildRegistry()
	if err != nil {
		return err
	}
	filter, err := config.FilterConfig{
		Services:   o.services,
		Severities: o.severities,
		Tags:       o.tags,
	}.CheckFilter()
	if err != nil {
		return err
	}

	var infos []checkInfo
	for _, c := range reg.All() {
		md := c.Metadata()
		if o.provider != "" && md.Provider != o.provider {
			continue
		}
		if !filter.Match(md) {
			continue
		}
		infos = append(infos, describe(reg, md))
	}

	switch o.output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "table":
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSEVERITY\tSERVICE\tTAGS\tTITLE")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				info.ID, info.Severity, info.Service, strings.Join(info.Tags, ","), info.Title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d checks\n", len(infos))
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: table, json)", o.output)
	}
}

func describe(reg *check.Registry, md check.Metadata) checkInfo {
	info := checkInfo{
		ID:       md.ID,
		Provider: md.Provider,
		Service:  md.Service,
		Severity: string(md.Severity),
		Tags:     md.Tags,
	}
	if doc, ok := reg.Doc(md.ID); ok {
		info.Title = doc.Title
		info.Description = doc.Description
		info.Risk = doc.Risk
		info.Remediation = doc.Remediation
		info.Frameworks = doc.Frameworks
	}
	return info
}
