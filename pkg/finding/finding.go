// Package finding defines the check result and report model for Warden.
package finding

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yairfalse/warden/pkg/resource"
)

// Status is the outcome of evaluating one check against one resource.
type Status string

const (
	// StatusPass means the resource complies.
	StatusPass Status = "PASS"
	// StatusFail means a real compliance violation.
	StatusFail Status = "FAIL"
	// StatusManual means the check cannot decide automatically.
	StatusManual Status = "MANUAL"
	// StatusError means the check could not determine compliance.
	StatusError Status = "ERROR"
)

// Statuses lists every status in report order.
var Statuses = []Status{StatusPass, StatusFail, StatusManual, StatusError}

// Severity ranks the impact of a failing check.
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityHigh          Severity = "high"
	SeverityMedium        Severity = "medium"
	SeverityLow           Severity = "low"
	SeverityInformational Severity = "informational"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInformational,
}

// ParseSeverity converts a case-insensitive string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Severities {
		if sev == known {
			return sev, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// ParseStatus converts a case-insensitive string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Draft is what a check predicate returns for one resource. The scheduler
// stamps check identity, severity and time onto it to produce a Finding.
type Draft struct {
	ResourceID     string
	ResourceName   string
	Region         string
	Status         Status
	StatusExtended string
}

// Pass returns a PASS draft for r.
func Pass(r resource.Record, format string, args ...any) Draft {
	return newDraft(r, StatusPass, format, args...)
}

// Fail returns a FAIL draft for r.
func Fail(r resource.Record, format string, args ...any) Draft {
	return newDraft(r, StatusFail, format, args...)
}

// Manual returns a MANUAL draft for r.
func Manual(r resource.Record, format string, args ...any) Draft {
	return newDraft(r, StatusManual, format, args...)
}

func newDraft(r resource.Record, status Status, format string, args ...any) Draft {
	return Draft{
		ResourceID:     r.ID,
		ResourceName:   r.DisplayName(),
		Region:         r.Region,
		Status:         status,
		StatusExtended: fmt.Sprintf(format, args...),
	}
}

// Finding is the immutable output of one check run against one resource.
type Finding struct {
	UID            string    `json:"uid"`
	CheckID        string    `json:"check_id"`
	Service        string    `json:"service"`
	Provider       string    `json:"provider"`
	Severity       Severity  `json:"severity"`
	ResourceID     string    `json:"resource_id"`
	ResourceName   string    `json:"resource_name,omitempty"`
	Region         string    `json:"region,omitempty"`
	Status         Status    `json:"status"`
	StatusExtended string    `json:"status_extended"`
	Muted          bool      `json:"muted,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Key identifies a finding within a report: one per (check, resource).
func Key(f Finding) string {
	return f.CheckID + "|" + f.ResourceID
}

var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/yairfalse/warden/finding"))

// UID returns a stable identifier for the (provider, check, resource) triple.
// The same resource evaluated by the same check yields the same UID in every
// scan.
func UID(provider, checkID, resourceID string) string {
	return uuid.NewSHA1(uidNamespace, []byte(provider+"|"+checkID+"|"+resourceID)).String()
}

// IsFailure reports whether f is an unmuted compliance violation.
func (f Finding) IsFailure() bool {
	return f.Status == StatusFail && !f.Muted
}
