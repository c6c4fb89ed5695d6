package emitter

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/warden/pkg/finding"
)

// LogEmitter writes one structured line per unmuted failure or error and a
// closing summary line.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter logs through the global logger.
func NewLogEmitter() *LogEmitter {
	return &LogEmitter{logger: log.Logger}
}

// Emit logs rep.
func (e *LogEmitter) Emit(_ context.Context, rep *finding.Report) error {
	for _, f := range rep.Findings {
		switch {
		case f.IsFailure():
			e.logger.Warn().
				Str("check", f.CheckID).
				Str("severity", string(f.Severity)).
				Str("resource", f.ResourceID).
				Str("region", f.Region).
				Msg(f.StatusExtended)
		case f.Status == finding.StatusError:
			e.logger.Error().
				Str("check", f.CheckID).
				Msg(f.StatusExtended)
		}
	}

	s := rep.Summary
	event := e.logger.Info()
	if rep.Incomplete {
		event = e.logger.Warn()
	}
	event.
		Str("scan_id", rep.ScanID).
		Str("provider", rep.Provider).
		Int("checks", s.Checks).
		Int("findings", s.Total).
		Int("pass", s.ByStatus[finding.StatusPass]).
		Int("fail", s.Failures()).
		Int("error", s.ByStatus[finding.StatusError]).
		Int("muted", s.Muted).
		Bool("incomplete", rep.Incomplete).
		Dur("duration", rep.Duration()).
		Msg("scan report")
	return nil
}

// Close is a no-op for the log emitter.
func (e *LogEmitter) Close() error {
	return nil
}
