package main

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/warden/internal/daemon"
	"github.com/yairfalse/warden/internal/emitter"
	"github.com/yairfalse/warden/internal/store"
	"github.com/yairfalse/warden/pkg/finding"
)

type daemonOptions struct {
	root     *rootOptions
	interval string
	listen   string
}

func newDaemonCmd(root *rootOptions) *cobra.Command {
	o := &daemonOptions{root: root}
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Scan continuously and serve metrics",
		Long: `Run Warden in daemon mode.

The daemon scans at the configured interval, logs every report, keeps the
report history and exports metrics.

Endpoints:
- /metrics  Prometheus metrics (findings by status and severity, scan durations)
- /healthz  Liveness and last scan state
- /readyz   Ready once the first scan completed

The mutelist policy is reloaded when it changes on disk. SIGINT and SIGTERM
stop the daemon gracefully.`,
		Example: `  warden daemon                       # Interval from config (default 1h)
  warden daemon --interval 15m
  warden daemon --listen :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&o.interval, "interval", "", "Scan interval, e.g. 15m")
	cmd.Flags().StringVar(&o.listen, "listen", "", "HTTP listen address for metrics and health")
	return cmd
}

func (o *daemonOptions) run(ctx context.Context) error {
	cfg := o.root.cfg
	if o.interval != "" {
		d, err := parseDuration("interval", o.interval)
		if err != nil {
			return err
		}
		cfg.Scanner.Interval = d
	}
	if o.listen != "" {
		cfg.Server.Listen = o.listen
	}

	eng, err := newEngine(ctx, cfg, engineOptions{watchMutelist: true})
	if err != nil {
		return err
	}
	defer eng.close()

	metrics, err := emitter.NewMetricsEmitter(eng.telemetry.Meter())
	if err != nil {
		return err
	}
	emit := emitter.NewMultiEmitter(emitter.NewLogEmitter(), metrics)
	defer func() { _ = emit.Close() }()

	var history daemon.History
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		history = s
	}

	scan := func(ctx context.Context) (*finding.Report, error) {
		return eng.run(ctx).Report, nil
	}
	d, err := daemon.NewDaemon(daemon.Config{Interval: cfg.Scanner.Interval, Retain: cfg.Store.Retain}, scan, emit, history)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           d.Handler(eng.telemetry.Registry()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(func() error {
			log.Info().Str("addr", srv.Addr).Msg("serving metrics and health")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}
	if eng.reloader != nil {
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return eng.reloader.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}
