package check

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Doc is the human-readable metadata of a check. It is data, kept next to
// each provider's checks in a YAML manifest.
type Doc struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Risk        string   `yaml:"risk"`
	Remediation string   `yaml:"remediation"`
	Frameworks  []string `yaml:"frameworks"`
}

// Manifest is the document root of a check manifest file.
type Manifest struct {
	Checks []Doc `yaml:"checks"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	for i, d := range m.Checks {
		if d.ID == "" {
			return Manifest{}, fmt.Errorf("parse manifest: check #%d is missing 'id' key", i+1)
		}
		if d.Title == "" {
			return Manifest{}, fmt.Errorf("parse manifest: check %q is missing 'title' key", d.ID)
		}
	}
	return m, nil
}

// Document attaches manifest docs to the checks under namespace. Every
// manifest entry must name a registered check and every registered check in
// the namespace must be documented; violations are DiscoveryErrors.
func (r *Registry) Document(namespace string, m Manifest) error {
	registered := r.Discover(namespace)

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(m.Checks))
	for _, d := range m.Checks {
		if seen[d.ID] {
			return discoveryError(d.ID, ErrDuplicateCheck, "documented twice")
		}
		seen[d.ID] = true
		if _, ok := r.checks[d.ID]; !ok {
			return discoveryError(d.ID, ErrMalformedCheck, "documented but not registered")
		}
	}

	var undocumented []string
	for _, c := range registered {
		if id := c.Metadata().ID; !seen[id] {
			undocumented = append(undocumented, id)
		}
	}
	if len(undocumented) > 0 {
		sort.Strings(undocumented)
		return discoveryError(undocumented[0], ErrMalformedCheck, "registered but not documented")
	}

	for _, d := range m.Checks {
		r.docs[d.ID] = d
	}
	return nil
}

// Doc returns the documentation of a check.
func (r *Registry) Doc(id string) (Doc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	return d, ok
}
