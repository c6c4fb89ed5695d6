package check

import (
	"strings"

	"github.com/yairfalse/warden/pkg/resource"
)

// Enabled reports whether a flag value switches its setting on. Providers
// spell it "on", "1", "true" or "enabled", in any case.
func Enabled(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "1", "true", "enabled":
		return true
	}
	return false
}

// FirstFlag returns the first flag of r named name (case-insensitive) whose
// value satisfies match. Scanning stops at that flag.
func FirstFlag(r resource.Record, name string, match func(string) bool) (resource.Flag, bool) {
	for _, f := range r.Flags {
		if strings.EqualFold(f.Name, name) && match(f.Value) {
			return f, true
		}
	}
	return resource.Flag{}, false
}

// HasFlag reports whether r carries any flag named name.
func HasFlag(r resource.Record, name string) bool {
	_, ok := FirstFlag(r, name, func(string) bool { return true })
	return ok
}
