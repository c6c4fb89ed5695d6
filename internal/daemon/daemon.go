// Package daemon runs scans on an interval and serves health endpoints.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/warden/internal/emitter"
	"github.com/yairfalse/warden/pkg/finding"
)

// ScanFunc runs one scan and returns its report.
type ScanFunc func(ctx context.Context) (*finding.Report, error)

// History persists reports between scans.
type History interface {
	Save(rep *finding.Report) error
	Prune(keep int) (int, error)
}

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	// Retain is how many reports History keeps.
	Retain int
}

// Daemon manages continuous scanning
type Daemon struct {
	interval  time.Duration
	retain    int
	scan      ScanFunc
	emitter   emitter.Emitter
	history   History
	metrics   *Metrics
	startTime time.Time
	scanCount atomic.Int64
	last      atomic.Pointer[finding.Report]
	lastErr   atomic.Pointer[string]
}

// NewDaemon creates a new daemon instance. history may be nil.
func NewDaemon(config Config, scan ScanFunc, emit emitter.Emitter, history History) (*Daemon, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("daemon: interval must be positive")
	}
	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("daemon metrics: %w", err)
	}
	return &Daemon{
		interval:  config.Interval,
		retain:    config.Retain,
		scan:      scan,
		emitter:   emit,
		history:   history,
		metrics:   metrics,
		startTime: time.Now(),
	}, nil
}

// Start scans immediately and then on every tick until ctx ends.
func (d *Daemon) Start(ctx context.Context) error {
	log.Info().Dur("interval", d.interval).Msg("daemon started")
	d.RunOnce(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Int64("scans", d.scanCount.Load()).Msg("daemon stopped")
			return nil
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scan, emits and stores its report.
func (d *Daemon) RunOnce(ctx context.Context) {
	start := time.Now()
	d.scanCount.Add(1)

	rep, err := d.scan(ctx)
	elapsed := time.Since(start)
	if err != nil {
		msg := err.Error()
		d.lastErr.Store(&msg)
		d.metrics.RecordScan(ctx, "error", elapsed)
		log.Error().Err(err).Dur("duration", elapsed).Msg("scan failed")
		return
	}

	status := "complete"
	if rep.Incomplete {
		status = "incomplete"
	}
	d.metrics.RecordScan(ctx, status, elapsed)
	d.metrics.RecordFailures(ctx, rep)
	d.last.Store(rep)
	d.lastErr.Store(nil)

	if err := d.emitter.Emit(ctx, rep); err != nil {
		log.Error().Err(err).Str("scan_id", rep.ScanID).Msg("emit failed")
	}
	d.persist(ctx, rep)
}

func (d *Daemon) persist(ctx context.Context, rep *finding.Report) {
	if d.history == nil {
		return
	}
	if err := d.history.Save(rep); err != nil {
		d.metrics.RecordStorageOperation(ctx, "save", "error")
		log.Error().Err(err).Str("scan_id", rep.ScanID).Msg("store report failed")
		return
	}
	d.metrics.RecordStorageOperation(ctx, "save", "success")

	if d.retain <= 0 {
		return
	}
	deleted, err := d.history.Prune(d.retain)
	if err != nil {
		d.metrics.RecordStorageOperation(ctx, "prune", "error")
		log.Warn().Err(err).Msg("prune history failed")
		return
	}
	d.metrics.RecordStorageOperation(ctx, "prune", "success")
	if deleted > 0 {
		log.Debug().Int("deleted", deleted).Msg("pruned report history")
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status     string    `json:"status"`
	Uptime     int64     `json:"uptime_seconds"`
	Scans      int64     `json:"scans"`
	LastScanID string    `json:"last_scan_id,omitempty"`
	LastScanAt time.Time `json:"last_scan_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	h := HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Scans:  d.scanCount.Load(),
	}
	if rep := d.last.Load(); rep != nil {
		h.LastScanID = rep.ScanID
		h.LastScanAt = rep.FinishedAt
	}
	if msg := d.lastErr.Load(); msg != nil {
		h.Status = "degraded"
		h.LastError = *msg
	}
	return h
}

// Ready reports whether at least one report is available.
func (d *Daemon) Ready() bool {
	return d.last.Load() != nil
}

// LastReport returns the most recent successful report, or nil.
func (d *Daemon) LastReport() *finding.Report {
	return d.last.Load()
}

// ScanCount returns total scans run
func (d *Daemon) ScanCount() int64 {
	return d.scanCount.Load()
}

// Handler serves /healthz, /readyz and, when gatherer is set, /metrics.
func (d *Daemon) Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, d.Health())
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !d.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for first scan"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
