package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/warden/pkg/finding"
)

// Metrics holds daemon operational metrics using OTEL semantic conventions
type Metrics struct {
	scans             metric.Int64Counter
	scanDuration      metric.Float64Histogram
	openFailures      metric.Int64Gauge
	storageOperations metric.Int64Counter
}

// NewMetrics creates daemon metrics on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter("warden.daemon"))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	scans, err := meter.Int64Counter(
		"warden.daemon.scans",
		metric.WithDescription("Number of scheduled scans"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return nil, err
	}

	scanDuration, err := meter.Float64Histogram(
		"warden.daemon.scan.duration",
		metric.WithDescription("Duration of scheduled scans"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	openFailures, err := meter.Int64Gauge(
		"warden.findings.failing",
		metric.WithDescription("Unmuted failing findings in the latest report"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, err
	}

	storageOperations, err := meter.Int64Counter(
		"warden.storage.operations",
		metric.WithDescription("Number of report history operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		scans:             scans,
		scanDuration:      scanDuration,
		openFailures:      openFailures,
		storageOperations: storageOperations,
	}, nil
}

// RecordScan records one scan with its outcome.
func (m *Metrics) RecordScan(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.scans.Add(ctx, 1, attrs)
	m.scanDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordFailures records the failing findings of rep per severity.
func (m *Metrics) RecordFailures(ctx context.Context, rep *finding.Report) {
	for _, sev := range finding.Severities {
		m.openFailures.Record(ctx, int64(rep.Summary.FailBySeverity[sev]),
			metric.WithAttributes(
				attribute.String("severity", string(sev)),
				attribute.String("cloud.provider", rep.Provider),
			),
		)
	}
}

// RecordStorageOperation records a report history operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation string, status string) {
	m.storageOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}
