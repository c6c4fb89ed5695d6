package scheduler

import (
	"time"

	"github.com/yairfalse/warden/internal/inventory"
	"github.com/yairfalse/warden/pkg/finding"
)

// State is the lifecycle position of one check within a scan.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// CanTransition reports whether a check may move from one state to another.
// PENDING -> RUNNING -> {COMPLETED, FAILED}; terminal states are final.
func CanTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// Result records how one check ran.
type Result struct {
	CheckID  string
	Service  string
	State    State
	Findings int
	Err      error
	Duration time.Duration
}

func (r *Result) advance(to State) {
	if CanTransition(r.State, to) {
		r.State = to
	}
}

// Scan is the outcome of one scheduler run.
type Scan struct {
	Report  *finding.Report
	Results []Result
	// Inventory is the scan's cache, populated with every service the
	// checks touched.
	Inventory *inventory.Cache
}

// Failed returns the results of checks that ended in StateFailed.
func (s *Scan) Failed() []Result {
	var failed []Result
	for _, r := range s.Results {
		if r.State == StateFailed {
			failed = append(failed, r)
		}
	}
	return failed
}
