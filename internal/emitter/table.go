package emitter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/yairfalse/warden/pkg/finding"
)

// TableEmitter prints findings as an aligned table followed by a summary.
type TableEmitter struct {
	w        io.Writer
	failOnly bool
}

// NewTableEmitter writes to w. With failOnly, PASS findings are left out of
// the table but still counted in the summary.
func NewTableEmitter(w io.Writer, failOnly bool) *TableEmitter {
	return &TableEmitter{w: w, failOnly: failOnly}
}

// Emit prints rep.
func (e *TableEmitter) Emit(_ context.Context, rep *finding.Report) error {
	tw := tabwriter.NewWriter(e.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSEVERITY\tCHECK\tRESOURCE\tREGION\tDETAIL")
	for _, f := range rep.Findings {
		if e.failOnly && f.Status == finding.StatusPass {
			continue
		}
		status := string(f.Status)
		if f.Muted {
			status += " (muted)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			status, f.Severity, f.CheckID, displayResource(f), f.Region, f.StatusExtended)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	s := rep.Summary
	fmt.Fprintf(e.w, "\n%d findings from %d checks: %d pass, %d fail, %d manual, %d error, %d muted\n",
		s.Total, s.Checks,
		s.ByStatus[finding.StatusPass], s.ByStatus[finding.StatusFail],
		s.ByStatus[finding.StatusManual], s.ByStatus[finding.StatusError], s.Muted)
	if rep.Incomplete {
		fmt.Fprintf(e.w, "report incomplete: failed services %v, timed out %t\n", rep.FailedServices, rep.TimedOut)
	}
	return nil
}

// Close is a no-op for the table emitter.
func (e *TableEmitter) Close() error {
	return nil
}

func displayResource(f finding.Finding) string {
	if f.ResourceName != "" {
		return f.ResourceName
	}
	if f.ResourceID != "" {
		return f.ResourceID
	}
	return "-"
}
