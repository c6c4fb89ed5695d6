// Package scheduler runs selected checks against a per-scan inventory and
// collects their findings into a report.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/internal/inventory"
	"github.com/yairfalse/warden/internal/report"
	"github.com/yairfalse/warden/pkg/finding"
)

// DefaultConcurrency bounds parallel predicate evaluation when no option
// overrides it.
const DefaultConcurrency = 8

// ErrCheckFault marks an unexpected failure inside a check predicate.
var ErrCheckFault = errors.New("check fault")

// ErrTimedOut marks checks abandoned because the scan deadline passed.
var ErrTimedOut = errors.New("timed out")

// Muter decides whether a finding is muted.
type Muter interface {
	Mute(ctx context.Context, f finding.Finding) (bool, error)
}

// Observer is notified when a check reaches a terminal state.
type Observer interface {
	CheckFinished(ctx context.Context, md check.Metadata, r Result)
}

// Scheduler executes checks with a bounded worker pool. A check takes a pool
// slot only once its services are populated, so checks waiting on a slow
// service never hold back checks whose inventory is ready.
type Scheduler struct {
	lister      inventory.Lister
	concurrency int
	timeout     time.Duration
	muter       Muter
	observer    Observer
	invObserver inventory.Observer
	tracer      trace.Tracer
	now         func() time.Time
	newID       func() string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency sets how many predicates may evaluate at once.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTimeout sets the scan deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithMuter applies a mutelist to every finding.
func WithMuter(m Muter) Option {
	return func(s *Scheduler) { s.muter = m }
}

// WithObserver registers check and inventory observers.
func WithObserver(o Observer, inv inventory.Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
		s.invObserver = inv
	}
}

// WithClock overrides the time source and scan ID generator.
func WithClock(now func() time.Time, newID func() string) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
		if newID != nil {
			s.newID = newID
		}
	}
}

// New creates a scheduler over lister.
func New(lister inventory.Lister, opts ...Option) *Scheduler {
	s := &Scheduler{
		lister:      lister,
		concurrency: DefaultConcurrency,
		tracer:      otel.Tracer("warden/scheduler"),
		now:         time.Now,
		newID:       func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes checks and returns the finalized report. Failures of single
// checks, unavailable services and the scan deadline are recorded in the
// report; Run itself never aborts part-way.
func (s *Scheduler) Run(ctx context.Context, checks []check.Check) *Scan {
	scanID := s.newID()
	started := s.now().UTC()

	scanCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	scanCtx, span := s.tracer.Start(scanCtx, "scheduler.run", trace.WithAttributes(
		attribute.String("scan.id", scanID),
		attribute.String("cloud.provider", s.lister.Provider()),
		attribute.Int("checks", len(checks)),
	))
	defer span.End()

	log.Info().
		Str("scan_id", scanID).
		Str("provider", s.lister.Provider()).
		Int("checks", len(checks)).
		Int("concurrency", s.concurrency).
		Dur("timeout", s.timeout).
		Msg("starting scan")

	var cacheOpts []inventory.Option
	if s.invObserver != nil {
		cacheOpts = append(cacheOpts, inventory.WithObserver(s.invObserver))
	}
	cache := inventory.NewCache(scanCtx, s.lister, cacheOpts...)

	results := make([]Result, len(checks))
	perCheck := make([][]finding.Finding, len(checks))
	for i, c := range checks {
		md := c.Metadata()
		results[i] = Result{CheckID: md.ID, Service: md.Service, State: StatePending}
	}

	pool := make(chan struct{}, s.concurrency)
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			perCheck[i] = s.runCheck(scanCtx, cache, pool, c, &results[i], started)
			return nil
		})
	}
	_ = g.Wait()

	timedOut := errors.Is(scanCtx.Err(), context.DeadlineExceeded)
	agg := report.NewAggregator()
	for _, findings := range perCheck {
		for _, f := range findings {
			agg.Add(s.mute(ctx, f))
		}
	}
	rep := agg.Finalize(report.Meta{
		ScanID:         scanID,
		Provider:       s.lister.Provider(),
		StartedAt:      started,
		FinishedAt:     s.now().UTC(),
		Checks:         len(checks),
		FailedServices: cache.Failed(),
		TimedOut:       timedOut,
	})

	if rep.Incomplete {
		span.SetStatus(codes.Error, "scan incomplete")
	}
	log.Info().
		Str("scan_id", scanID).
		Int("findings", rep.Summary.Total).
		Int("fail", rep.Summary.ByStatus[finding.StatusFail]).
		Int("error", rep.Summary.ByStatus[finding.StatusError]).
		Bool("incomplete", rep.Incomplete).
		Strs("failed_services", rep.FailedServices).
		Dur("duration", rep.Duration()).
		Msg("scan complete")

	return &Scan{Report: rep, Results: results, Inventory: cache}
}

func (s *Scheduler) runCheck(ctx context.Context, cache *inventory.Cache, pool chan struct{}, c check.Check, res *Result, ts time.Time) []finding.Finding {
	md := c.Metadata()
	start := time.Now()
	res.advance(StateRunning)

	ctx, span := s.tracer.Start(ctx, "scheduler.check", trace.WithAttributes(
		attribute.String("check.id", md.ID),
		attribute.String("check.service", md.Service),
	))
	defer span.End()

	findings, err := s.evaluate(ctx, cache, pool, c, ts)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		res.advance(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("check", md.ID).Dur("duration", res.Duration).Msg("check failed")
		findings = []finding.Finding{errorFinding(md, s.lister.Provider(), err, ts)}
	} else {
		res.advance(StateCompleted)
	}
	res.Findings = len(findings)

	if s.observer != nil {
		s.observer.CheckFinished(ctx, md, *res)
	}
	return findings
}

func (s *Scheduler) evaluate(ctx context.Context, cache *inventory.Cache, pool chan struct{}, c check.Check, ts time.Time) ([]finding.Finding, error) {
	md := c.Metadata()
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	clients, err := cache.Resolve(ctx, md.Services()...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, contextError(ctxErr)
		}
		return nil, err
	}

	select {
	case pool <- struct{}{}:
		defer func() { <-pool }()
	case <-ctx.Done():
		return nil, contextError(ctx.Err())
	}

	drafts, err := execute(ctx, c, clients)
	if err != nil {
		return nil, err
	}

	findings := make([]finding.Finding, 0, len(drafts))
	for _, d := range drafts {
		if _, perr := finding.ParseStatus(string(d.Status)); perr != nil {
			return nil, fmt.Errorf("%w: resource %s: %v", ErrCheckFault, d.ResourceID, perr)
		}
		findings = append(findings, stamp(md, s.lister.Provider(), d, ts))
	}
	return findings, nil
}

type outcome struct {
	drafts []finding.Draft
	err    error
}

// execute runs the predicate on its own goroutine so a scan deadline can
// abandon it. Panics and returned errors become ErrCheckFault.
func execute(ctx context.Context, c check.Check, clients inventory.Clients) ([]finding.Draft, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("check", c.Metadata().ID).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("check panicked")
				done <- outcome{err: fmt.Errorf("%w: panic: %v", ErrCheckFault, r)}
			}
		}()
		drafts, err := c.Execute(ctx, clients)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrCheckFault, err)
		}
		done <- outcome{drafts: drafts, err: err}
	}()

	select {
	case o := <-done:
		return o.drafts, o.err
	case <-ctx.Done():
		return nil, contextError(ctx.Err())
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimedOut, err)
	}
	return err
}

func (s *Scheduler) mute(ctx context.Context, f finding.Finding) finding.Finding {
	if s.muter == nil {
		return f
	}
	muted, err := s.muter.Mute(ctx, f)
	if err != nil {
		log.Warn().Err(err).Str("check", f.CheckID).Str("resource", f.ResourceID).Msg("mutelist evaluation failed")
		return f
	}
	f.Muted = muted
	return f
}

func stamp(md check.Metadata, provider string, d finding.Draft, ts time.Time) finding.Finding {
	return finding.Finding{
		UID:            finding.UID(provider, md.ID, d.ResourceID),
		CheckID:        md.ID,
		Service:        md.Service,
		Provider:       provider,
		Severity:       md.Severity,
		ResourceID:     d.ResourceID,
		ResourceName:   d.ResourceName,
		Region:         d.Region,
		Status:         d.Status,
		StatusExtended: d.StatusExtended,
		Tags:           md.Tags,
		Timestamp:      ts,
	}
}

func errorFinding(md check.Metadata, provider string, err error, ts time.Time) finding.Finding {
	return finding.Finding{
		UID:            finding.UID(provider, md.ID, ""),
		CheckID:        md.ID,
		Service:        md.Service,
		Provider:       provider,
		Severity:       md.Severity,
		Status:         finding.StatusError,
		StatusExtended: fmt.Sprintf("Check %s could not be evaluated: %v", md.ID, err),
		Tags:           md.Tags,
		Timestamp:      ts,
	}
}
