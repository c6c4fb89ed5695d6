// Package mutelist decides, through a Rego policy, which findings are muted.
//
// Policies live in package warden and define a boolean rule named mute:
//
//	package warden
//
//	import rego.v1
//
//	default mute := false
//
//	mute if {
//		input.finding.check_id == "aws.s3.bucket_public_access"
//		input.finding.resource_id in {"public-assets", "website"}
//	}
//
// Muted findings stay in the report; only their Muted flag is set.
package mutelist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/warden/internal/telemetry"
	"github.com/yairfalse/warden/pkg/finding"
)

// Query is the Rego decision every mutelist policy must define.
const Query = "data.warden.mute"

// Input is the document a policy sees as input.
type Input struct {
	Finding finding.Finding `json:"finding"`
}

// Mutelist evaluates a compiled policy against findings.
type Mutelist struct {
	query   rego.PreparedEvalQuery
	modules []string
	logger  *telemetry.Logger
	tracer  trace.Tracer
}

// Compile prepares the given Rego modules, keyed by file name.
func Compile(ctx context.Context, modules map[string]string) (*Mutelist, error) {
	if len(modules) == 0 {
		return nil, fmt.Errorf("mutelist: no policy modules")
	}

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := []func(*rego.Rego){rego.Query(Query)}
	for _, name := range names {
		opts = append(opts, rego.Module(name, modules[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile mutelist: %w", err)
	}

	m := &Mutelist{
		query:   prepared,
		modules: names,
		logger:  telemetry.NewLogger("mutelist"),
		tracer:  otel.Tracer("warden/mutelist"),
	}
	m.logger.WithContext(ctx).Info().
		Strs("modules", names).
		Msg("mutelist loaded")
	return m, nil
}

// Load reads a single .rego file, or every .rego file in a directory.
func Load(ctx context.Context, path string) (*Mutelist, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat mutelist: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("list mutelist dir: %w", err)
		}
	}

	modules := make(map[string]string, len(files))
	for _, f := range files {
		if !strings.HasSuffix(f, ".rego") {
			return nil, fmt.Errorf("mutelist %s: not a .rego file", f)
		}
		content, err := os.ReadFile(filepath.Clean(f))
		if err != nil {
			return nil, fmt.Errorf("read mutelist %s: %w", f, err)
		}
		modules[filepath.Base(f)] = string(content)
	}
	return Compile(ctx, modules)
}

// Modules returns the loaded module names.
func (m *Mutelist) Modules() []string {
	return m.modules
}

// Mute reports whether f is muted. An undefined decision means not muted; a
// non-boolean decision is an error.
func (m *Mutelist) Mute(ctx context.Context, f finding.Finding) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "mutelist.evaluate", trace.WithAttributes(
		attribute.String("check.id", f.CheckID),
		attribute.String("resource.id", f.ResourceID),
	))
	defer span.End()

	results, err := m.query.Eval(ctx, rego.EvalInput(Input{Finding: f}))
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("evaluate mutelist: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	muted, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("mutelist: %s must be boolean, got %T", Query, results[0].Expressions[0].Value)
	}
	if muted {
		m.logger.WithContext(ctx).Debug().
			Str("check", f.CheckID).
			Str("resource", f.ResourceID).
			Msg("finding muted")
	}
	return muted, nil
}
