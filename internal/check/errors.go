package check

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateCheck is wrapped by DiscoveryError for repeated identifiers.
	ErrDuplicateCheck = errors.New("duplicate check identifier")
	// ErrMalformedCheck is wrapped by DiscoveryError for invalid metadata.
	ErrMalformedCheck = errors.New("malformed check")
)

// DiscoveryError reports a corrupted check catalog. It is fatal: a scan must
// not start when one is returned.
type DiscoveryError struct {
	CheckID string
	Err     error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("check discovery: %s: %v", e.CheckID, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func discoveryError(id string, sentinel error, format string, args ...any) *DiscoveryError {
	return &DiscoveryError{
		CheckID: id,
		Err:     fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}
