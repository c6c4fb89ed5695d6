package emitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/warden/pkg/finding"
)

// MetricsEmitter exports the latest report through OTEL instruments and
// counts finding transitions between consecutive reports.
type MetricsEmitter struct {
	meter metric.Meter

	// Metrics
	findings     metric.Int64ObservableGauge
	lastScan     metric.Float64ObservableGauge
	scanDuration metric.Float64Histogram
	scansTotal   metric.Int64Counter
	changesTotal metric.Int64Counter
	registration metric.Registration

	// State for observable gauges
	mu       sync.RWMutex
	previous *finding.Report
	counts   map[findingKey]int64
}

type findingKey struct {
	service  string
	severity finding.Severity
	status   finding.Status
	muted    bool
}

// NewMetricsEmitter registers instruments on meter.
func NewMetricsEmitter(meter metric.Meter) (*MetricsEmitter, error) {
	e := &MetricsEmitter{
		meter:  meter,
		counts: make(map[findingKey]int64),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *MetricsEmitter) initMetrics() error {
	var err error

	e.findings, err = e.meter.Int64ObservableGauge(
		"warden_findings",
		metric.WithDescription("Findings in the latest report by service, severity and status"),
	)
	if err != nil {
		return fmt.Errorf("create findings gauge: %w", err)
	}

	e.lastScan, err = e.meter.Float64ObservableGauge(
		"warden_last_scan_timestamp_seconds",
		metric.WithDescription("Unix time the latest report finished"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create last_scan gauge: %w", err)
	}

	e.registration, err = e.meter.RegisterCallback(e.observe, e.findings, e.lastScan)
	if err != nil {
		return fmt.Errorf("register callback: %w", err)
	}

	e.scanDuration, err = e.meter.Float64Histogram(
		"warden_scan_duration_seconds",
		metric.WithDescription("Time taken by a full scan"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create scan_duration histogram: %w", err)
	}

	e.scansTotal, err = e.meter.Int64Counter(
		"warden_scans_total",
		metric.WithDescription("Total scans reported"),
	)
	if err != nil {
		return fmt.Errorf("create scans counter: %w", err)
	}

	e.changesTotal, err = e.meter.Int64Counter(
		"warden_finding_changes_total",
		metric.WithDescription("Finding transitions between consecutive reports"),
	)
	if err != nil {
		return fmt.Errorf("create finding_changes counter: %w", err)
	}

	return nil
}

// Emit records rep.
func (e *MetricsEmitter) Emit(ctx context.Context, rep *finding.Report) error {
	attrs := metric.WithAttributes(
		attribute.String("provider", rep.Provider),
		attribute.Bool("incomplete", rep.Incomplete),
	)
	e.scanDuration.Record(ctx, rep.Duration().Seconds(), attrs)
	e.scansTotal.Add(ctx, 1, attrs)

	counts := make(map[findingKey]int64)
	for _, f := range rep.Findings {
		counts[findingKey{service: f.Service, severity: f.Severity, status: f.Status, muted: f.Muted}]++
	}

	e.mu.Lock()
	previous := e.previous
	e.previous = rep
	e.counts = counts
	e.mu.Unlock()

	// The first report is the baseline.
	if previous == nil {
		return nil
	}
	for _, d := range finding.Compare(previous, rep) {
		f := d.Current
		if f == nil {
			f = d.Previous
		}
		e.changesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("change_type", string(d.Type)),
			attribute.String("service", f.Service),
			attribute.String("severity", string(f.Severity)),
		))
		if d.Type != finding.DiffChanged {
			log.Info().
				Str("check", f.CheckID).
				Str("resource", f.ResourceID).
				Str("change", string(d.Type)).
				Msg("finding changed")
		}
	}
	return nil
}

func (e *MetricsEmitter) observe(_ context.Context, o metric.Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.previous == nil {
		return nil
	}
	for k, n := range e.counts {
		o.ObserveInt64(e.findings, n, metric.WithAttributes(
			attribute.String("service", k.service),
			attribute.String("severity", string(k.severity)),
			attribute.String("status", string(k.status)),
			attribute.Bool("muted", k.muted),
		))
	}
	o.ObserveFloat64(e.lastScan, float64(e.previous.FinishedAt.UnixNano())/1e9)
	return nil
}

// Close unregisters the gauge callback.
func (e *MetricsEmitter) Close() error {
	if e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
