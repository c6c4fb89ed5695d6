package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yairfalse/warden/pkg/finding"
)

// JSONEmitter writes each report as indented JSON.
type JSONEmitter struct {
	w      io.Writer
	closer io.Closer
}

// NewJSONEmitter writes to w. The caller owns w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{w: w}
}

// NewJSONFileEmitter creates (or truncates) the file at path.
func NewJSONFileEmitter(path string) (*JSONEmitter, error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}
	return &JSONEmitter{w: f, closer: f}, nil
}

// Emit encodes rep.
func (e *JSONEmitter) Emit(_ context.Context, rep *finding.Report) error {
	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Close closes the file opened by NewJSONFileEmitter.
func (e *JSONEmitter) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}
