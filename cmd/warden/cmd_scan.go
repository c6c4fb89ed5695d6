package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/warden/internal/emitter"
	"github.com/yairfalse/warden/internal/inventory"
	"github.com/yairfalse/warden/internal/store"
	"github.com/yairfalse/warden/pkg/finding"
)

type scanOptions struct {
	root *rootOptions

	provider    string
	regions     []string
	profile     string
	project     string
	concurrency int
	timeout     string

	checks         []string
	excludeChecks  []string
	services       []string
	severities     []string
	tags           []string
	excludeTags    []string
	output         string
	outputFile     string
	failOnly       bool
	failOnFindings bool
	inventoryPath  string
	dumpInventory  string
	noStore        bool
}

func newScanCmd(root *rootOptions) *cobra.Command {
	o := &scanOptions{root: root}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the check catalog once and print the report",
		Long: `Scan inventories the configured cloud account, runs every selected check
and prints one finding per check and resource.

Exit codes: 0 on success, 1 on errors (including a corrupt check catalog),
3 when --fail-on-findings is set and the report holds unmuted FAIL findings.`,
		Example: `  warden scan                                   # Scan with defaults (aws)
  warden scan --region eu-west-1 --region us-east-1
  warden scan --provider gcp --project acme-prod
  warden scan --check 'aws.s3.*' --severity critical
  warden scan -o json --output-file report.json
  warden scan --fail-on-findings                # Exit 3 on failures (CI)
  warden scan --dump-inventory inv.json         # Record the inventory
  warden scan --inventory inv.json              # Re-run checks offline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.run(ctx, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.provider, "provider", "", "Cloud provider: aws or gcp")
	f.StringSliceVarP(&o.regions, "region", "r", nil, "AWS region to scan (repeatable)")
	f.StringVar(&o.profile, "profile", "", "AWS shared config profile")
	f.StringVar(&o.project, "project", "", "GCP project ID")
	f.IntVar(&o.concurrency, "concurrency", 0, "Checks run in parallel")
	f.StringVar(&o.timeout, "timeout", "", "Scan deadline, e.g. 10m (0 disables)")
	f.StringSliceVar(&o.checks, "check", nil, "Only run checks matching these IDs (wildcards allowed)")
	f.StringSliceVar(&o.excludeChecks, "exclude-check", nil, "Skip checks matching these IDs")
	f.StringSliceVar(&o.services, "service", nil, "Only run checks of these services")
	f.StringSliceVar(&o.severities, "severity", nil, "Only run checks of these severities")
	f.StringSliceVar(&o.tags, "tag", nil, "Only run checks carrying one of these tags")
	f.StringSliceVar(&o.excludeTags, "exclude-tag", nil, "Skip checks carrying one of these tags")
	f.StringVarP(&o.output, "output", "o", "table", "Output format: table, json")
	f.StringVar(&o.outputFile, "output-file", "", "Also write the JSON report to this file")
	f.BoolVar(&o.failOnly, "fail-only", false, "Only print FAIL and ERROR findings in table output")
	f.BoolVar(&o.failOnFindings, "fail-on-findings", false, "Exit 3 when the report has unmuted FAIL findings")
	f.StringVar(&o.inventoryPath, "inventory", "", "Scan a recorded inventory instead of the cloud")
	f.StringVar(&o.dumpInventory, "dump-inventory", "", "Record the scanned inventory to this file")
	f.BoolVar(&o.noStore, "no-store", false, "Do not save the report to history")
	return cmd
}

// apply copies command-line overrides into the loaded configuration.
func (o *scanOptions) apply() error {
	cfg := o.root.cfg
	if o.provider != "" {
		cfg.Provider.Name = o.provider
	}
	if len(o.regions) > 0 {
		cfg.Provider.Regions = o.regions
	}
	if o.profile != "" {
		cfg.Provider.Profile = o.profile
	}
	if o.project != "" {
		cfg.Provider.Project = o.project
	}
	if o.concurrency > 0 {
		cfg.Scanner.Concurrency = o.concurrency
	}
	if o.timeout != "" {
		d, err := parseDuration("timeout", o.timeout)
		if err != nil {
			return err
		}
		cfg.Scanner.Timeout = d
	}
	cfg.Filter.Checks = append(cfg.Filter.Checks, o.checks...)
	cfg.Filter.ExcludeChecks = append(cfg.Filter.ExcludeChecks, o.excludeChecks...)
	cfg.Filter.Services = append(cfg.Filter.Services, o.services...)
	cfg.Filter.Severities = append(cfg.Filter.Severities, o.severities...)
	cfg.Filter.Tags = append(cfg.Filter.Tags, o.tags...)
	cfg.Filter.ExcludeTags = append(cfg.Filter.ExcludeTags, o.excludeTags...)
	return nil
}

func parseDuration(flag, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", flag, value, err)
	}
	return d, nil
}

func (o *scanOptions) run(ctx context.Context, out io.Writer) error {
	if err := o.apply(); err != nil {
		return err
	}
	cfg := o.root.cfg

	eng, err := newEngine(ctx, cfg, engineOptions{inventoryPath: o.inventoryPath})
	if err != nil {
		return err
	}
	defer eng.close()

	emit, err := o.emitters(out, eng)
	if err != nil {
		return err
	}
	defer func() { _ = emit.Close() }()

	scan := eng.run(ctx)
	rep := scan.Report

	if o.dumpInventory != "" {
		if err := inventory.SaveSnapshot(o.dumpInventory, scan.Inventory); err != nil {
			return err
		}
		log.Info().Str("path", o.dumpInventory).Msg("inventory recorded")
	}

	if err := emit.Emit(ctx, rep); err != nil {
		return fmt.Errorf("emit report: %w", err)
	}

	if cfg.Store.Path != "" && !o.noStore {
		saveReport(cfg.Store.Path, cfg.Store.Retain, rep)
	}

	if o.failOnFindings && rep.HasFailures() {
		return &exitCodeError{code: exitFindings}
	}
	return nil
}

func (o *scanOptions) emitters(out io.Writer, eng *engine) (emitter.Emitter, error) {
	metrics, err := emitter.NewMetricsEmitter(eng.telemetry.Meter())
	if err != nil {
		return nil, err
	}
	emitters := []emitter.Emitter{metrics}
	switch o.output {
	case "table":
		emitters = append(emitters, emitter.NewTableEmitter(out, o.failOnly))
	case "json":
		emitters = append(emitters, emitter.NewJSONEmitter(out))
	default:
		return nil, fmt.Errorf("invalid output format: %s (must be one of: table, json)", o.output)
	}
	if o.outputFile != "" {
		file, err := emitter.NewJSONFileEmitter(o.outputFile)
		if err != nil {
			return nil, err
		}
		emitters = append(emitters, file)
	}
	return emitter.NewMultiEmitter(emitters...), nil
}

// saveReport stores rep in history. Failures are logged; the scan result
// already reached its emitters.
func saveReport(path string, retain int, rep *finding.Report) {
	s, err := store.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("report history unavailable")
		return
	}
	defer func() { _ = s.Close() }()

	if err := s.Save(rep); err != nil {
		log.Warn().Err(err).Str("scan_id", rep.ScanID).Msg("failed to save report")
		return
	}
	if removed, err := s.Prune(retain); err != nil {
		log.Warn().Err(err).Msg("failed to prune report history")
	} else if removed > 0 {
		log.Debug().Int("removed", removed).Msg("pruned report history")
	}
}
