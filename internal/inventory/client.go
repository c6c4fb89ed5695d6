package inventory

import (
	"time"

	"github.com/yairfalse/warden/pkg/resource"
)

// ServiceClient holds the resource inventory of one service for one scan.
// It is populated exactly once and read-only afterwards.
type ServiceClient struct {
	service  string
	records  []resource.Record
	err      error
	duration time.Duration
}

// Service returns the service name.
func (c *ServiceClient) Service() string { return c.service }

// Records returns the cached records. Callers must not modify them.
func (c *ServiceClient) Records() []resource.Record { return c.records }

// Len returns the number of cached records.
func (c *ServiceClient) Len() int { return len(c.records) }

// Err returns the population error, nil for a healthy client.
func (c *ServiceClient) Err() error { return c.err }

// Failed reports whether population failed.
func (c *ServiceClient) Failed() bool { return c.err != nil }

// Duration returns how long population took.
func (c *ServiceClient) Duration() time.Duration { return c.duration }

func (c *ServiceClient) availability() error {
	if c.err == nil {
		return nil
	}
	return &UnavailableError{Service: c.service, Err: c.err}
}
