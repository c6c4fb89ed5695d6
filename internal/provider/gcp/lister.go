// Package gcp enumerates Google Cloud resources into inventory records.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"
	storage "google.golang.org/api/storage/v1"

	"github.com/yairfalse/warden/internal/config"
	"github.com/yairfalse/warden/internal/inventory"
	"github.com/yairfalse/warden/internal/provider"
	"github.com/yairfalse/warden/pkg/resource"
)

// ProviderName is the identifier of this provider.
const ProviderName = "gcp"

const userAgent = "warden"

func init() {
	provider.Register(ProviderName, func(ctx context.Context, cfg config.ProviderConfig) (inventory.Lister, error) {
		return New(ctx, Config{Project: cfg.Project})
	})
}

// Config holds GCP lister configuration.
type Config struct {
	Project string
	// Options are passed to every API client, after the defaults.
	Options []option.ClientOption
}

// Lister implements inventory.Lister against the Google Cloud APIs.
type Lister struct {
	project string
	sql     SQLAdminAPI
	storage StorageAPI
	now     func() time.Time
}

// New creates API clients using application default credentials.
func New(ctx context.Context, cfg Config) (*Lister, error) {
	if cfg.Project == "" {
		return nil, errors.New("gcp: project is required")
	}
	opts := append([]option.ClientOption{option.WithUserAgent(userAgent)}, cfg.Options...)

	sqlSvc, err := sqladmin.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sqladmin client: %w", err)
	}
	storageSvc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Lister{
		project: cfg.Project,
		sql:     &sqlAdminService{svc: sqlSvc},
		storage: &storageService{svc: storageSvc},
		now:     time.Now,
	}, nil
}

var services = map[string]func(l *Lister, ctx context.Context) ([]resource.Record, error){
	"cloudsql":     (*Lister).listSQLInstances,
	"cloudstorage": (*Lister).listBuckets,
}

// Provider returns "gcp".
func (l *Lister) Provider() string { return ProviderName }

// Services returns every service this lister can enumerate, sorted.
func (l *Lister) Services() []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListResources enumerates service in the configured project.
func (l *Lister) ListResources(ctx context.Context, name string) ([]resource.Record, error) {
	list, ok := services[name]
	if !ok {
		return nil, fmt.Errorf("gcp %s: %w", name, inventory.ErrUnknownService)
	}

	start := time.Now()
	records, err := list(l, ctx)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: %w", name, l.project, err)
	}
	log.Debug().
		Str("service", name).
		Str("project", l.project).
		Int("count", len(records)).
		Dur("duration", time.Since(start)).
		Msg("listed resources")
	return records, nil
}

func (l *Lister) newRecord(service, typ, id, name, region string) resource.Record {
	return resource.Record{
		ID:        id,
		Name:      name,
		Service:   service,
		Type:      typ,
		Provider:  ProviderName,
		Region:    region,
		Account:   l.project,
		Labels:    make(map[string]string),
		Attrs:     make(map[string]string),
		ScannedAt: l.now(),
	}
}
