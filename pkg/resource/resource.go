// Package resource defines the inventory record model for Warden.
package resource

import (
	"strconv"
	"time"
)

// Record is a snapshot of one cloud resource as enumerated by a provider.
// Records are immutable once they land in an inventory cache: checks read
// them, never write them.
type Record struct {
	ID        string            `json:"id"`         // Provider-assigned identifier (ARN, self link, ...)
	Name      string            `json:"name"`       // Human-readable name
	Service   string            `json:"service"`    // Inventory service that produced it (e.g., "rds")
	Type      string            `json:"type"`       // Resource type within the service (e.g., "db_instance")
	Provider  string            `json:"provider"`   // Cloud provider (e.g., "aws", "gcp")
	Region    string            `json:"region"`     // Region or location
	Account   string            `json:"account"`    // Account/Project ID
	Labels    map[string]string `json:"labels"`     // Normalized labels/tags
	Attrs     map[string]string `json:"attrs"`      // Provider-specific attributes, absent when unreported
	Flags     []Flag            `json:"flags"`      // Multi-valued settings (database flags, cluster settings, ...)
	ScannedAt time.Time         `json:"scanned_at"` // When this was enumerated
}

// Flag is a single name/value setting attached to a resource. Providers report
// these as ordered lists and a name may repeat.
type Flag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attr returns the raw attribute and whether the provider reported it.
func (r Record) Attr(key string) (string, bool) {
	if r.Attrs == nil {
		return "", false
	}
	v, ok := r.Attrs[key]
	return v, ok
}

// AttrOr returns the attribute or def when it is absent.
func (r Record) AttrOr(key, def string) string {
	if v, ok := r.Attr(key); ok {
		return v
	}
	return def
}

// Bool reads a boolean attribute. Absent or unparsable values yield def, so
// the caller always states what "unset" means for the attribute.
func (r Record) Bool(key string, def bool) bool {
	v, ok := r.Attr(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int reads an integer attribute with the same default rules as Bool.
func (r Record) Int(key string, def int) int {
	v, ok := r.Attr(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DisplayName returns Name, falling back to ID.
func (r Record) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// Key returns a unique key for identifying a resource across scans.
func Key(r Record) string {
	return r.ID + "|" + r.Provider + "|" + r.Region + "|" + r.Account
}

// FormatBool stores b in attrs under key. Nil pointers leave the key absent.
func FormatBool(attrs map[string]string, key string, b *bool) {
	if b == nil {
		return
	}
	attrs[key] = strconv.FormatBool(*b)
}

// FormatInt32 stores n in attrs under key. Nil pointers leave the key absent.
func FormatInt32(attrs map[string]string, key string, n *int32) {
	if n == nil {
		return
	}
	attrs[key] = strconv.Itoa(int(*n))
}
