package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/yairfalse/warden/pkg/resource"
)

// Observer is notified once per service population.
type Observer interface {
	ServicePopulated(ctx context.Context, service string, count int, d time.Duration, err error)
}

// Option configures a Cache.
type Option func(*Cache)

// WithObserver registers an observer for population events.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// Cache is the per-scan resource inventory. Services are populated lazily on
// first request; concurrent requests for the same service share a single
// population and every caller observes the fully populated client.
type Cache struct {
	ctx      context.Context
	lister   Lister
	observer Observer

	group   singleflight.Group
	mu      sync.RWMutex
	clients map[string]*ServiceClient
	// pending holds services requested but not yet stored in clients.
	pending map[string]bool

	populations atomic.Int64
}

// NewCache creates a cache for one scan. ctx bounds every population: when it
// ends, in-flight enumerations are cancelled and their services fail.
func NewCache(ctx context.Context, lister Lister, opts ...Option) *Cache {
	c := &Cache{
		ctx:     ctx,
		lister:  lister,
		clients: make(map[string]*ServiceClient),
		pending: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider of the underlying lister.
func (c *Cache) Provider() string {
	return c.lister.Provider()
}

// Get returns the client for service, populating it on first use. A failed
// population yields an *UnavailableError, never an empty client. If ctx ends
// while waiting, ctx.Err() is returned and the population keeps running for
// other callers.
func (c *Cache) Get(ctx context.Context, service string) (*ServiceClient, error) {
	if sc, ok := c.begin(service); ok {
		return sc, sc.availability()
	}

	ch := c.group.DoChan(service, func() (any, error) {
		// A population may have finished between lookup and DoChan.
		if sc, ok := c.lookup(service); ok {
			return sc, nil
		}
		sc := c.populate(service)
		c.mu.Lock()
		c.clients[service] = sc
		delete(c.pending, service)
		c.mu.Unlock()
		return sc, nil
	})

	select {
	case res := <-ch:
		sc := res.Val.(*ServiceClient)
		return sc, sc.availability()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve fetches every listed service. The first unavailable service or
// context error is returned; the clients resolved so far are returned as well.
func (c *Cache) Resolve(ctx context.Context, services ...string) (Clients, error) {
	clients := make(Clients, len(services))
	for _, s := range services {
		sc, err := c.Get(ctx, s)
		if err != nil {
			return clients, err
		}
		clients[s] = sc
	}
	return clients, nil
}

// Failed returns the sorted names of services whose population failed. Once
// the scan context has ended, services still being populated count as failed.
func (c *Cache) Failed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var failed []string
	for name, sc := range c.clients {
		if sc.Failed() {
			failed = append(failed, name)
		}
	}
	if c.ctx.Err() != nil {
		for name := range c.pending {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// Populations returns how many enumerations ran against the provider.
func (c *Cache) Populations() int64 {
	return c.populations.Load()
}

// Snapshot returns the records of every healthy populated service.
func (c *Cache) Snapshot() map[string][]resource.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]resource.Record, len(c.clients))
	for name, sc := range c.clients {
		if !sc.Failed() {
			out[name] = sc.Records()
		}
	}
	return out
}

// begin returns the stored client for service or marks it pending.
func (c *Cache) begin(service string) (*ServiceClient, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sc, ok := c.clients[service]; ok {
		return sc, true
	}
	c.pending[service] = true
	return nil, false
}

func (c *Cache) lookup(service string) (*ServiceClient, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sc, ok := c.clients[service]
	return sc, ok
}

func (c *Cache) populate(service string) (sc *ServiceClient) {
	c.populations.Add(1)
	start := time.Now()
	sc = &ServiceClient{service: service}

	defer func() {
		if r := recover(); r != nil {
			sc.records = nil
			sc.err = fmt.Errorf("lister panic: %v", r)
		}
		sc.duration = time.Since(start)
		c.report(sc)
	}()

	records, err := c.lister.ListResources(c.ctx, service)
	if err != nil {
		sc.err = err
		return sc
	}
	sc.records = records
	return sc
}

func (c *Cache) report(sc *ServiceClient) {
	if sc.err != nil {
		log.Warn().
			Err(sc.err).
			Str("provider", c.lister.Provider()).
			Str("service", sc.service).
			Dur("duration", sc.duration).
			Msg("inventory population failed")
	} else {
		log.Debug().
			Str("provider", c.lister.Provider()).
			Str("service", sc.service).
			Int("count", len(sc.records)).
			Dur("duration", sc.duration).
			Msg("inventory populated")
	}
	if c.observer != nil {
		c.observer.ServicePopulated(c.ctx, sc.service, len(sc.records), sc.duration, sc.err)
	}
}
