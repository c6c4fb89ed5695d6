package mutelist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yairfalse/warden/pkg/finding"
)

const reloadDebounce = 100 * time.Millisecond

// Reloader serves the current mutelist and swaps in a new one whenever the
// policy changes on disk. A policy that fails to compile leaves the previous
// one in place.
type Reloader struct {
	path    string
	dir     bool
	current atomic.Pointer[Mutelist]
	reloads atomic.Int64
}

// NewReloader loads the policy at path, a .rego file or a directory of them.
func NewReloader(ctx context.Context, path string) (*Reloader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat mutelist: %w", err)
	}
	m, err := Load(ctx, path)
	if err != nil {
		return nil, err
	}
	r := &Reloader{path: filepath.Clean(path), dir: info.IsDir()}
	r.current.Store(m)
	return r, nil
}

// Mute evaluates f against the current policy.
func (r *Reloader) Mute(ctx context.Context, f finding.Finding) (bool, error) {
	return r.current.Load().Mute(ctx, f)
}

// Reloads returns how many times a new policy was swapped in.
func (r *Reloader) Reloads() int64 {
	return r.reloads.Load()
}

// Reload recompiles the policy from disk.
func (r *Reloader) Reload(ctx context.Context) error {
	m, err := Load(ctx, r.path)
	if err != nil {
		return err
	}
	r.current.Store(m)
	r.reloads.Add(1)
	return nil
}

// Run watches the policy until ctx ends.
func (r *Reloader) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watchDir := r.path
	if !r.dir {
		watchDir = filepath.Dir(r.path)
	}
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("watch %s: %w", watchDir, err)
	}

	logger := r.current.Load().logger
	logger.Info().Str("path", r.path).Msg("watching mutelist for changes")

	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !r.relevant(event) {
				continue
			}
			// Editors write in several steps; wait for them to settle.
			pending = time.After(reloadDebounce)

		case <-pending:
			pending = nil
			if err := r.Reload(ctx); err != nil {
				logger.Warn().Err(err).Str("path", r.path).Msg("mutelist reload failed, keeping previous policy")
				continue
			}
			logger.Info().Str("path", r.path).Msg("mutelist reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("mutelist watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Reloader) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Clean(event.Name)
	if r.dir {
		return strings.HasSuffix(name, ".rego")
	}
	return name == r.path
}
