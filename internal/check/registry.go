package check

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/yairfalse/warden/pkg/finding"
)

var idPattern = regexp.MustCompile(`^[a-z0-9]+\.[a-z0-9_]+\.[a-z0-9_]+$`)

// Registry holds the check catalog for a process. Registration happens at
// start-up from explicit per-provider tables; duplicates are fatal.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
	docs   map[string]Doc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		checks: make(map[string]Check),
		docs:   make(map[string]Doc),
	}
}

// Register adds a check. It returns a *DiscoveryError if the identifier is
// malformed or already registered; the existing check is kept.
func (r *Registry) Register(c Check) error {
	if c == nil {
		return discoveryError("<nil>", ErrMalformedCheck, "nil check")
	}
	md := c.Metadata()
	if err := validate(md); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[md.ID]; exists {
		return discoveryError(md.ID, ErrDuplicateCheck, "already registered")
	}
	r.checks[md.ID] = c
	return nil
}

// RegisterAll registers checks in order and stops at the first error.
func (r *Registry) RegisterAll(checks ...Check) error {
	for _, c := range checks {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func validate(md Metadata) error {
	if !idPattern.MatchString(md.ID) {
		return discoveryError(md.ID, ErrMalformedCheck, "identifier must be <provider>.<service>.<name>")
	}
	parts := strings.SplitN(md.ID, ".", 3)
	if parts[0] != md.Provider {
		return discoveryError(md.ID, ErrMalformedCheck, "provider %q does not match identifier", md.Provider)
	}
	if parts[1] != md.Service {
		return discoveryError(md.ID, ErrMalformedCheck, "service %q does not match identifier", md.Service)
	}
	if _, err := finding.ParseSeverity(string(md.Severity)); err != nil {
		return discoveryError(md.ID, ErrMalformedCheck, "%v", err)
	}
	return nil
}

// Get returns a check by identifier.
func (r *Registry) Get(id string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checks[id]
	return c, ok
}

// Len returns the number of registered checks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.checks)
}

// All returns every registered check sorted by identifier.
func (r *Registry) All() []Check {
	return r.Discover("")
}

// Discover returns the checks under namespace, sorted by identifier. The
// namespace is a dot-separated identifier prefix such as "aws" or "aws.rds";
// an empty namespace matches everything.
func (r *Registry) Discover(namespace string) []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix := ""
	if namespace != "" {
		prefix = strings.TrimSuffix(namespace, ".") + "."
	}
	checks := make([]Check, 0, len(r.checks))
	for id, c := range r.checks {
		if strings.HasPrefix(id, prefix) {
			checks = append(checks, c)
		}
	}
	sortChecks(checks)
	return checks
}

// Select returns the checks under namespace that pass f, sorted by identifier.
func (r *Registry) Select(namespace string, f Filter) []Check {
	discovered := r.Discover(namespace)
	if f.IsEmpty() {
		return discovered
	}
	selected := make([]Check, 0, len(discovered))
	for _, c := range discovered {
		if f.Match(c.Metadata()) {
			selected = append(selected, c)
		}
	}
	return selected
}

// Services returns the sorted, de-duplicated inventory services needed by checks.
func Services(checks []Check) []string {
	seen := make(map[string]bool)
	for _, c := range checks {
		for _, s := range c.Metadata().Services() {
			seen[s] = true
		}
	}
	services := make([]string, 0, len(seen))
	for s := range seen {
		services = append(services, s)
	}
	sort.Strings(services)
	return services
}

func sortChecks(checks []Check) {
	sort.Slice(checks, func(i, j int) bool {
		return checks[i].Metadata().ID < checks[j].Metadata().ID
	})
}
