// Package registry builds and republishes the pool of compiler
// descriptors (spec.md §4.4, component C4).
//
// Grounded on master/registry/registry.go's InvokerRegistry: a
// mutex-guarded set that is replaced wholesale rather than mutated in
// place, plus its sibling invoker.go's pingLoop shape for the rescan
// timer (reused directly in workspace.Pool.RunSweeper and again
// here).
package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"compilebroker/config"
	"compilebroker/domain"
	"compilebroker/lib/logger"
	"compilebroker/metrics"
)

// Registry holds the currently published compiler set and knows how
// to rebuild it from config.
type Registry struct {
	cfg *config.RegistryConfig

	mu         sync.RWMutex
	byID       map[string]*domain.CompilerDescriptor
	ordered    []*domain.CompilerDescriptor
	lastDigest string

	metrics *metrics.Collector
}

// New builds an empty Registry; call Rescan to populate it.
func New(cfg *config.RegistryConfig) *Registry {
	return &Registry{cfg: cfg, byID: make(map[string]*domain.CompilerDescriptor)}
}

// SetMetrics attaches a metrics collector. Optional.
func (r *Registry) SetMetrics(m *metrics.Collector) {
	r.metrics = m
}

// Get looks up a published descriptor by id.
func (r *Registry) Get(id string) (*domain.CompilerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// List returns the published set, sorted by name, as spec.md §4.4
// requires for publication.
func (r *Registry) List() []*domain.CompilerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.CompilerDescriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Rescan rebuilds the compiler set from the seed list and, if it
// differs from the last publication, atomically swaps it in. Matches
// spec.md §4.4's "if the serialized compiler set equals the previous
// publication, the snapshot is not swapped" rule, avoiding client
// churn on a no-op rescan.
func (r *Registry) Rescan(ctx context.Context) {
	resolver := newResolver(r.cfg)
	descriptors := resolver.resolveSeedList(ctx, r.cfg.Compilers, rootGetter{cfg: r.cfg})
	descriptors = append(descriptors, resolver.androidNDKCompilers()...)

	initialized := make([]*domain.CompilerDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.IsRemote() {
			initialized = append(initialized, d)
			continue
		}
		if err := probeCompiler(ctx, d); err != nil {
			logger.Warn("registry: dropping %s, init failed: %v", d.ID, err)
			continue
		}
		initialized = append(initialized, d)
	}

	sort.Slice(initialized, func(i, j int) bool { return initialized[i].Name < initialized[j].Name })

	digest, err := digestOf(initialized)
	if err != nil {
		logger.Error("registry: can not digest rescan result: %v", err)
		return
	}

	r.mu.Lock()
	if digest == r.lastDigest {
		r.mu.Unlock()
		return
	}
	r.lastDigest = digest
	r.ordered = initialized
	r.byID = make(map[string]*domain.CompilerDescriptor, len(initialized))
	for _, d := range initialized {
		r.byID[d.ID] = d
	}
	r.mu.Unlock()

	r.metrics.SetRegistrySize(len(initialized))
	logger.Info("registry: published %d compilers", len(initialized))
}

func digestOf(descriptors []*domain.CompilerDescriptor) (string, error) {
	b, err := json.Marshal(descriptors)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RunRescanLoop reruns Rescan every RescanInterval until ctx is
// cancelled. Meant for app.App.AddProcess, mirroring
// master/registry/invoker.go:pingLoop.
func (r *Registry) RunRescanLoop(ctx context.Context) {
	logger.Info("starting registry rescan loop")
	r.Rescan(ctx)

	t := time.Tick(r.cfg.RescanInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping registry rescan loop")
			return
		case <-t:
			r.Rescan(ctx)
		}
	}
}
