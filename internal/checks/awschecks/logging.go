package awschecks

import (
	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// minRetentionDays is the shortest acceptable log retention.
const minRetentionDays = 365

// CloudTrailLogValidation fails trails without log file integrity
// validation. log_file_validation defaults to false.
func CloudTrailLogValidation() check.Check {
	md := metadata("cloudtrail", "trail_log_file_validation_enabled", finding.SeverityMedium, "logging")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !r.Bool("log_file_validation", false) {
			return finding.Fail(r, "CloudTrail trail %s does not validate log files.", r.DisplayName()), true
		}
		return finding.Pass(r, "CloudTrail trail %s validates log files.", r.DisplayName()), true
	})
}

// LogGroupRetention fails log groups that expire events before
// minRetentionDays. An absent retention_days means events never expire.
func LogGroupRetention() check.Check {
	md := metadata("cloudwatchlogs", "log_group_retention_365_days", finding.SeverityLow, "logging")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if _, ok := r.Attr("retention_days"); !ok {
			return finding.Pass(r, "Log group %s never expires events.", r.DisplayName()), true
		}
		days := r.Int("retention_days", 0)
		if days < minRetentionDays {
			return finding.Fail(r, "Log group %s keeps events for %d days, less than %d.", r.DisplayName(), days, minRetentionDays), true
		}
		return finding.Pass(r, "Log group %s keeps events for %d days.", r.DisplayName(), days), true
	})
}
