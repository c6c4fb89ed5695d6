package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/warden/internal/store"
	"github.com/yairfalse/warden/pkg/finding"
)

type diffOptions struct {
	root   *rootOptions
	from   string
	to     string
	output string
}

func newDiffCmd(root *rootOptions) *cobra.Command {
	o := &diffOptions{root: root}
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare two stored reports",
		Long: `Diff lists findings that started failing, stopped failing or changed
status between two reports in the history. By default it compares the two
most recent reports.`,
		Example: `  warden diff
  warden diff --from 01J9Z... --to 01JA0...
  warden diff -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.from, "from", "", "Scan ID of the older report")
	cmd.Flags().StringVar(&o.to, "to", "", "Scan ID of the newer report")
	cmd.Flags().StringVarP(&o.output, "output", "o", "table", "Output format: table, json")
	return cmd
}

func (o *diffOptions) run(out io.Writer) error {
	s, err := openHistory(o.root)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	prev, cur, err := o.reports(s)
	if err != nil {
		return err
	}
	diffs := finding.Compare(prev, cur)

	switch o.output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(diffs)
	case "table":
		fmt.Fprintf(out, "%s -> %s\n\n", prev.ScanID, cur.ScanID)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CHANGE\tCHECK\tRESOURCE\tFROM\tTO")
		counts := make(map[finding.DiffType]int)
		for _, d := range diffs {
			counts[d.Type]++
			ref := d.Current
			if ref == nil {
				ref = d.Previous
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				d.Type, ref.CheckID, displayName(ref), statusOf(d.Previous), statusOf(d.Current))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d new failures, %d resolved, %d changed\n",
			counts[finding.DiffNewFailure], counts[finding.DiffResolved], counts[finding.DiffChanged])
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: table, json)", o.output)
	}
}

func (o *diffOptions) reports(s *store.Store) (*finding.Report, *finding.Report, error) {
	if o.from != "" || o.to != "" {
		if o.from == "" || o.to == "" {
			return nil, nil, fmt.Errorf("--from and --to must be given together")
		}
		prev, err := s.Get(o.from)
		if err != nil {
			return nil, nil, err
		}
		cur, err := s.Get(o.to)
		if err != nil {
			return nil, nil, err
		}
		return prev, cur, nil
	}
	recent, err := s.Recent(2)
	if err != nil {
		return nil, nil, err
	}
	if len(recent) < 2 {
		return nil, nil, fmt.Errorf("need two stored reports to compare, have %d", len(recent))
	}
	return recent[1], recent[0], nil
}

func displayName(f *finding.Finding) string {
	if f.ResourceName != "" {
		return f.ResourceName
	}
	if f.ResourceID != "" {
		return f.ResourceID
	}
	return "-"
}

func statusOf(f *finding.Finding) string {
	if f == nil {
		return "-"
	}
	if f.Muted {
		return string(f.Status) + " (muted)"
	}
	return string(f.Status)
}

type historyOptions struct {
	root   *rootOptions
	output string
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	o := &historyOptions{root: root}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&o.output, "output", "o", "table", "Output format: table, json")
	return cmd
}

func (o *historyOptions) run(out io.Writer) error {
	s, err := openHistory(o.root)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	entries, err := s.List()
	if err != nil {
		return err
	}

	switch o.output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "table":
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SCAN ID\tPROVIDER\tSTARTED\tFINDINGS\tFAILURES\tCOMPLETE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\n",
				e.ScanID, e.Provider, e.StartedAt.Format("2006-01-02 15:04:05"), e.Total, e.Failures, !e.Incomplete)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: table, json)", o.output)
	}
}

func openHistory(root *rootOptions) (*store.Store, error) {
	if root.cfg.Store.Path == "" {
		return nil, fmt.Errorf("report history is disabled: set [store] path in the config")
	}
	return store.Open(root.cfg.Store.Path)
}
