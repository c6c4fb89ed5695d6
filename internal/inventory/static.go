package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/yairfalse/warden/pkg/resource"
)

// StaticLister serves a fixed inventory. It backs offline scans of a
// recorded snapshot and stands in for providers in tests.
type StaticLister struct {
	ProviderName string
	Records      map[string][]resource.Record
	Errors       map[string]error
	// Delay is applied before every listing and honors ctx.
	Delay map[string]time.Duration
}

// Provider returns the configured provider name.
func (s *StaticLister) Provider() string { return s.ProviderName }

// Services returns every service with records or a configured error.
func (s *StaticLister) Services() []string {
	seen := make(map[string]bool)
	for name := range s.Records {
		seen[name] = true
	}
	for name := range s.Errors {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListResources returns the recorded resources of service.
func (s *StaticLister) ListResources(ctx context.Context, service string) ([]resource.Record, error) {
	if d := s.Delay[service]; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.Errors[service]; err != nil {
		return nil, err
	}
	records, ok := s.Records[service]
	if !ok {
		return nil, nil
	}
	return records, nil
}

// Snapshot is the on-disk form of a recorded inventory.
type Snapshot struct {
	Provider   string                       `json:"provider"`
	RecordedAt time.Time                    `json:"recorded_at"`
	Services   map[string][]resource.Record `json:"services"`
}

// SaveSnapshot writes the healthy services of c to path as JSON.
func SaveSnapshot(path string, c *Cache) error {
	snap := Snapshot{
		Provider:   c.Provider(),
		RecordedAt: time.Now().UTC(),
		Services:   c.Snapshot(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a recorded inventory into a StaticLister.
func LoadSnapshot(path string) (*StaticLister, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Provider == "" {
		return nil, fmt.Errorf("snapshot %s: provider missing", path)
	}
	return &StaticLister{ProviderName: snap.Provider, Records: snap.Services}, nil
}
