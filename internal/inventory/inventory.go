// Package inventory caches provider resource enumerations for one scan.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/yairfalse/warden/pkg/resource"
)

// Lister enumerates resources for a cloud provider. Implementations own
// paging and retries against the provider API.
type Lister interface {
	// Provider returns the provider identifier (e.g., "aws", "gcp").
	Provider() string

	// Services returns the service names this lister can enumerate.
	Services() []string

	// ListResources returns every resource of the given service.
	ListResources(ctx context.Context, service string) ([]resource.Record, error)
}

// ErrUnavailable marks a service whose inventory could not be populated.
var ErrUnavailable = errors.New("service unavailable")

// ErrUnknownService is returned by listers asked for a service they do not serve.
var ErrUnknownService = errors.New("unknown service")

// UnavailableError carries the service name and the population cause.
// errors.Is matches both ErrUnavailable and the cause.
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("service %s unavailable: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Clients maps service names to populated service clients for a single check
// invocation.
type Clients map[string]*ServiceClient

// Records returns the cached records for service, or nil when the service
// was not resolved for this invocation.
func (c Clients) Records(service string) []resource.Record {
	sc, ok := c[service]
	if !ok || sc == nil {
		return nil
	}
	return sc.Records()
}
