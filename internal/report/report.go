// Package report finalizes scan findings into a stable, summarized report.
package report

import (
	"sort"
	"time"

	"github.com/google/btree"

	"github.com/yairfalse/warden/pkg/finding"
)

// Meta carries scan-level facts the aggregator cannot derive from findings.
type Meta struct {
	ScanID         string
	Provider       string
	StartedAt      time.Time
	FinishedAt     time.Time
	Checks         int
	FailedServices []string
	TimedOut       bool
}

// Aggregator accumulates findings in (service, check_id, resource_id) order.
// It is not safe for concurrent use.
type Aggregator struct {
	index *btree.BTreeG[finding.Finding]
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		index: btree.NewG[finding.Finding](32, less),
	}
}

func less(a, b finding.Finding) bool {
	if a.Service != b.Service {
		return a.Service < b.Service
	}
	if a.CheckID != b.CheckID {
		return a.CheckID < b.CheckID
	}
	return a.ResourceID < b.ResourceID
}

// Add records f. A second finding for the same (check, resource) pair is
// dropped unless it is more severe in status than the one kept, so neither a
// FAIL nor an ERROR is hidden behind a PASS for the same resource.
func (a *Aggregator) Add(f finding.Finding) {
	if existing, ok := a.index.Get(f); ok && rank(existing.Status) >= rank(f.Status) {
		return
	}
	a.index.ReplaceOrInsert(f)
}

// Len returns the number of distinct findings.
func (a *Aggregator) Len() int {
	return a.index.Len()
}

// Finalize builds the immutable report.
func (a *Aggregator) Finalize(meta Meta) *finding.Report {
	findings := make([]finding.Finding, 0, a.index.Len())
	summary := finding.NewSummary()
	summary.Checks = meta.Checks

	a.index.Ascend(func(f finding.Finding) bool {
		findings = append(findings, f)
		summary.Add(f)
		return true
	})

	failed := append([]string(nil), meta.FailedServices...)
	sort.Strings(failed)

	return &finding.Report{
		ScanID:         meta.ScanID,
		Provider:       meta.Provider,
		StartedAt:      meta.StartedAt,
		FinishedAt:     meta.FinishedAt,
		Incomplete:     len(failed) > 0 || meta.TimedOut,
		TimedOut:       meta.TimedOut,
		FailedServices: failed,
		Findings:       findings,
		Summary:        summary,
	}
}

// Finalize aggregates findings in one call.
func Finalize(meta Meta, findings []finding.Finding) *finding.Report {
	a := NewAggregator()
	for _, f := range findings {
		a.Add(f)
	}
	return a.Finalize(meta)
}

// rank orders statuses for de-duplication: PASS < MANUAL < FAIL < ERROR.
func rank(s finding.Status) int {
	switch s {
	case finding.StatusError:
		return 4
	case finding.StatusFail:
		return 3
	case finding.StatusManual:
		return 2
	case finding.StatusPass:
		return 1
	default:
		return 0
	}
}
