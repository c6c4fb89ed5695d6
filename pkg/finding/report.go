package finding

import "time"

// Summary holds report-level counts. FAIL and ERROR are always counted apart.
type Summary struct {
	Total          int              `json:"total"`
	Checks         int              `json:"checks"`
	Muted          int              `json:"muted"`
	ByStatus       map[Status]int   `json:"by_status"`
	BySeverity     map[Severity]int `json:"by_severity"`
	FailBySeverity map[Severity]int `json:"fail_by_severity"`
}

// NewSummary returns a Summary with every status and severity bucket present.
func NewSummary() Summary {
	s := Summary{
		ByStatus:       make(map[Status]int, len(Statuses)),
		BySeverity:     make(map[Severity]int, len(Severities)),
		FailBySeverity: make(map[Severity]int, len(Severities)),
	}
	for _, st := range Statuses {
		s.ByStatus[st] = 0
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
		s.FailBySeverity[sev] = 0
	}
	return s
}

// Add counts f.
func (s *Summary) Add(f Finding) {
	s.Total++
	s.ByStatus[f.Status]++
	s.BySeverity[f.Severity]++
	if f.Muted {
		s.Muted++
		return
	}
	if f.Status == StatusFail {
		s.FailBySeverity[f.Severity]++
	}
}

// Failures returns the number of unmuted FAIL findings.
func (s Summary) Failures() int {
	n := 0
	for _, c := range s.FailBySeverity {
		n += c
	}
	return n
}

// Report is the finalized, ordered result of one scan. It is never mutated
// after finalization.
type Report struct {
	ScanID         string    `json:"scan_id"`
	Provider       string    `json:"provider"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Incomplete     bool      `json:"incomplete"`
	TimedOut       bool      `json:"timed_out"`
	FailedServices []string  `json:"failed_services,omitempty"`
	Findings       []Finding `json:"findings"`
	Summary        Summary   `json:"summary"`
}

// HasFailures reports whether the report contains an unmuted FAIL.
func (r *Report) HasFailures() bool {
	for _, f := range r.Findings {
		if f.IsFailure() {
			return true
		}
	}
	return false
}

// Duration returns how long the scan took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
