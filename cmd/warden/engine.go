package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/internal/checks/awschecks"
	"github.com/yairfalse/warden/internal/checks/gcpchecks"
	"github.com/yairfalse/warden/internal/config"
	"github.com/yairfalse/warden/internal/inventory"
	"github.com/yairfalse/warden/internal/mutelist"
	"github.com/yairfalse/warden/internal/provider"
	_ "github.com/yairfalse/warden/internal/provider/aws"
	_ "github.com/yairfalse/warden/internal/provider/gcp"
	"github.com/yairfalse/warden/internal/scheduler"
	"github.com/yairfalse/warden/internal/telemetry"
)

// buildRegistry registers and documents every provider's checks.
func buildRegistry() (*check.Registry, error) {
	reg := check.NewRegistry()
	if err := awschecks.Register(reg); err != nil {
		return nil, err
	}
	if err := gcpchecks.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// engineOptions tune how an engine is assembled.
type engineOptions struct {
	// inventoryPath replaces the cloud provider with a recorded snapshot.
	inventoryPath string
	// watchMutelist reloads the mutelist policy when it changes on disk.
	watchMutelist bool
}

// engine is everything a scan needs, built from configuration.
type engine struct {
	lister    inventory.Lister
	checks    []check.Check
	telemetry *telemetry.Provider
	reloader  *mutelist.Reloader
	scheduler *scheduler.Scheduler
}

func newEngine(ctx context.Context, cfg *config.Config, opts engineOptions) (*engine, error) {
	reg, err := buildRegistry()
	if err != nil {
		return nil, err
	}
	filter, err := cfg.Filter.CheckFilter()
	if err != nil {
		return nil, err
	}

	lister, err := newLister(ctx, cfg, opts.inventoryPath)
	if err != nil {
		return nil, err
	}

	checks := reg.Select(lister.Provider(), filter)
	if len(checks) == 0 {
		log.Warn().Str("provider", lister.Provider()).Msg("no checks selected")
	}

	tel, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return nil, err
	}
	e := &engine{lister: lister, checks: checks, telemetry: tel}

	schedOpts := []scheduler.Option{
		scheduler.WithConcurrency(cfg.Scanner.Concurrency),
		scheduler.WithTimeout(cfg.Scanner.Timeout),
		scheduler.WithObserver(tel, tel),
	}
	if path := cfg.Mutelist.Policy; path != "" {
		muter, err := e.loadMutelist(ctx, path, opts.watchMutelist)
		if err != nil {
			e.close()
			return nil, err
		}
		schedOpts = append(schedOpts, scheduler.WithMuter(muter))
	}
	e.scheduler = scheduler.New(lister, schedOpts...)

	log.Debug().
		Str("provider", lister.Provider()).
		Int("checks", len(checks)).
		Strs("services", check.Services(checks)).
		Msg("engine ready")
	return e, nil
}

func (e *engine) loadMutelist(ctx context.Context, path string, watch bool) (scheduler.Muter, error) {
	if watch {
		r, err := mutelist.NewReloader(ctx, path)
		if err != nil {
			return nil, err
		}
		e.reloader = r
		return r, nil
	}
	return mutelist.Load(ctx, path)
}

// run executes one scan over the selected checks.
func (e *engine) run(ctx context.Context) *scheduler.Scan {
	return e.scheduler.Run(ctx, e.checks)
}

func (e *engine) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.telemetry.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}

// newLister returns the configured provider, or a recorded inventory when
// path is set.
func newLister(ctx context.Context, cfg *config.Config, path string) (inventory.Lister, error) {
	if path != "" {
		if err := cfg.ValidateSettings(); err != nil {
			return nil, err
		}
		l, err := inventory.LoadSnapshot(path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Str("provider", l.Provider()).Msg("scanning recorded inventory")
		return l, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return provider.New(ctx, cfg.Provider)
}
