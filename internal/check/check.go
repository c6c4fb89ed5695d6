// Package check defines the check contract and the registry that selects
// checks for a scan.
package check

import (
	"context"

	"github.com/yairfalse/warden/internal/inventory"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// Check is the interface every compliance rule implements.
// Checks share no state; they only read the clients they are handed.
type Check interface {
	// Metadata returns the check's identity and targeting.
	Metadata() Metadata

	// Execute evaluates the check against cached inventory. It must not
	// perform I/O or modify records. Expected "no data" conditions yield
	// zero drafts, not errors.
	Execute(ctx context.Context, clients inventory.Clients) ([]finding.Draft, error)
}

// Metadata describes a check to the engine.
type Metadata struct {
	// ID is "<provider>.<service>.<name>" and unique within a registry.
	ID       string
	Provider string
	// Service is the primary inventory service the check reads.
	Service  string
	Severity finding.Severity
	Tags     []string
	// Dependencies lists additional inventory services the check reads.
	Dependencies []string
}

// Services returns every inventory service the check needs, primary first.
func (m Metadata) Services() []string {
	services := make([]string, 0, 1+len(m.Dependencies))
	services = append(services, m.Service)
	for _, d := range m.Dependencies {
		if d != m.Service {
			services = append(services, d)
		}
	}
	return services
}

// HasTag reports whether the check carries tag.
func (m Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ExecuteFunc is the predicate signature for checks built with New.
type ExecuteFunc func(ctx context.Context, clients inventory.Clients) ([]finding.Draft, error)

type funcCheck struct {
	md Metadata
	fn ExecuteFunc
}

// New builds a Check from metadata and a predicate.
func New(md Metadata, fn ExecuteFunc) Check {
	return &funcCheck{md: md, fn: fn}
}

func (c *funcCheck) Metadata() Metadata { return c.md }

func (c *funcCheck) Execute(ctx context.Context, clients inventory.Clients) ([]finding.Draft, error) {
	return c.fn(ctx, clients)
}

// RecordFunc evaluates one record. It returns false when the record is not
// applicable to the check, in which case no draft is emitted for it.
type RecordFunc func(r resource.Record) (finding.Draft, bool)

// PerResource builds a Check that emits at most one draft per record of the
// primary service, in inventory order.
func PerResource(md Metadata, fn RecordFunc) Check {
	return New(md, func(_ context.Context, clients inventory.Clients) ([]finding.Draft, error) {
		records := clients.Records(md.Service)
		var drafts []finding.Draft
		for _, r := range records {
			if d, ok := fn(r); ok {
				drafts = append(drafts, d)
			}
		}
		return drafts, nil
	})
}
