package check

import (
	"github.com/IGLOU-EU/go-wildcard/v2"

	"github.com/yairfalse/warden/pkg/finding"
)

// Filter controls which checks a scan runs. Within a dimension any entry may
// match; across dimensions every non-empty include list must match. An
// exclusion always wins over an inclusion. Check patterns accept wildcards.
type Filter struct {
	IncludeChecks     []string
	ExcludeChecks     []string
	IncludeServices   []string
	ExcludeServices   []string
	IncludeSeverities []finding.Severity
	ExcludeSeverities []finding.Severity
	IncludeTags       []string
	ExcludeTags       []string
}

// Match returns true if a check with md should run.
func (f Filter) Match(md Metadata) bool {
	if f.excluded(md) {
		return false
	}

	if len(f.IncludeChecks) > 0 && !matchPattern(f.IncludeChecks, md.ID) {
		return false
	}
	if len(f.IncludeServices) > 0 && !contains(f.IncludeServices, md.Service) {
		return false
	}
	if len(f.IncludeSeverities) > 0 && !containsSeverity(f.IncludeSeverities, md.Severity) {
		return false
	}
	if len(f.IncludeTags) > 0 && !anyTag(f.IncludeTags, md) {
		return false
	}
	return true
}

func (f Filter) excluded(md Metadata) bool {
	return matchPattern(f.ExcludeChecks, md.ID) ||
		contains(f.ExcludeServices, md.Service) ||
		containsSeverity(f.ExcludeSeverities, md.Severity) ||
		anyTag(f.ExcludeTags, md)
}

// IsEmpty returns true if no filters are configured.
func (f Filter) IsEmpty() bool {
	return len(f.IncludeChecks) == 0 && len(f.ExcludeChecks) == 0 &&
		len(f.IncludeServices) == 0 && len(f.ExcludeServices) == 0 &&
		len(f.IncludeSeverities) == 0 && len(f.ExcludeSeverities) == 0 &&
		len(f.IncludeTags) == 0 && len(f.ExcludeTags) == 0
}

func matchPattern(patterns []string, id string) bool {
	for _, p := range patterns {
		if wildcard.Match(p, id) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsSeverity(list []finding.Severity, s finding.Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func anyTag(tags []string, md Metadata) bool {
	for _, t := range tags {
		if md.HasTag(t) {
			return true
		}
	}
	return false
}
