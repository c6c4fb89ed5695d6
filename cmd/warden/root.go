package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/internal/config"
	"github.com/yairfalse/warden/internal/telemetry"
)

var version = "0.1.0"

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitFindings = 3
)

// exitCodeError makes the process exit with code. A nil err prints nothing.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

// rootOptions holds the persistent flags and the configuration they load.
type rootOptions struct {
	configPath string
	envFile    string
	storePath  string
	debug      bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Cloud security posture scanner",
		Long: `Warden - cloud security posture scanner

Warden inventories the resources of a cloud account, runs a catalog of
independent compliance checks against that inventory and reports one
PASS, FAIL, MANUAL or ERROR finding per check and resource.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load(cmd)
		},
	}
	cmd.SetVersionTemplate("Warden {{.Version}} - cloud security posture scanner\n")

	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", os.Getenv("WARDEN_CONFIG"), "Path to a TOML config file")
	cmd.PersistentFlags().StringVar(&o.envFile, "env-file", "", "Load environment variables (credentials, profiles) from a .env file")
	cmd.PersistentFlags().StringVar(&o.storePath, "store", "", "Report history database (overrides [store] path)")
	cmd.PersistentFlags().BoolVar(&o.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newScanCmd(o),
		newChecksCmd(o),
		newDaemonCmd(o),
		newDiffCmd(o),
		newHistoryCmd(o),
	)
	return cmd
}

// load reads the env file and config, then configures logging.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if o.storePath != "" {
		cfg.Store.Path = o.storePath
	}
	if o.debug {
		cfg.Log.Level = "debug"
	}
	o.cfg = cfg

	return telemetry.SetupLogging(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return exitCode(cmd, cmd.Execute())
}

func exitCode(cmd *cobra.Command, err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitCodeError
	if errors.As(err, &ee) {
		if ee.err != nil {
			cmd.PrintErrf("Error: %v\n", ee.err)
		}
		return ee.code
	}
	var de *check.DiscoveryError
	if errors.As(err, &de) {
		cmd.PrintErrf("Error: check catalog is corrupt: %v\n", de)
		return exitError
	}
	cmd.PrintErrf("Error: %v\n", err)
	return exitError
}
