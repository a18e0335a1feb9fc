// Package workspace allocates scratch directories for compile jobs
// and sweeps them once no longer referenced (spec.md §4.3, component
// C3).
//
// Directory allocation is grounded on the teacher's
// invoker/threads_executor.go:newSandbox (os.MkdirAll under a
// configured root, os.RemoveAll on release). The periodic sweep loop
// is grounded on master/registry/invoker.go's pingLoop (a
// time.Tick-driven select against a stop context).
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"compilebroker/config"
	"compilebroker/lib/logger"
)

// Handle is a reference-counted claim on a workspace directory. A
// workspace is only eligible for sweeping once its refcount drops to
// zero; this resolves the "retain until the cache entry that backs
// output_file_path is itself evicted" race (Open Question #3) without
// polling "is a compile in flight".
type Handle struct {
	pool *Pool
	dir  string

	mu       sync.Mutex
	refCount int
	removed  bool
}

// Dir is the workspace's absolute path.
func (h *Handle) Dir() string { return h.dir }

// Retain increments the handle's refcount. Pair with Release.
func (h *Handle) Retain() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refCount++
}

// Release decrements the handle's refcount. It does not remove the
// directory itself — that is the sweeper's job, so a Release racing
// with an in-flight read of the workspace never deletes out from
// under it.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refCount > 0 {
		h.refCount--
	}
}

func (h *Handle) sweepable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refCount == 0 && !h.removed
}

// Pool allocates and sweeps workspace directories under Root.
type Pool struct {
	root string

	mu      sync.Mutex
	handles map[string]*Handle
}

// New creates a Pool rooted at cfg.Root, creating the root directory
// if it does not already exist.
func New(cfg *config.WorkspaceConfig) (*Pool, error) {
	if err := os.MkdirAll(cfg.Root, 0777); err != nil {
		return nil, fmt.Errorf("workspace: can not create root %s: %w", cfg.Root, err)
	}
	return &Pool{
		root:    cfg.Root,
		handles: make(map[string]*Handle),
	}, nil
}

// Acquire allocates a fresh, empty directory and returns a Handle
// with a refcount of one (the caller must Release it when done, and
// Retain before handing it to anything that outlives the calling
// compile, such as the result cache).
func (p *Pool) Acquire() (*Handle, error) {
	dir := filepath.Join(p.root, uuid.NewString())
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("workspace: can not create %s: %w", dir, err)
	}

	h := &Handle{pool: p, dir: dir, refCount: 1}
	p.mu.Lock()
	p.handles[dir] = h
	p.mu.Unlock()
	return h, nil
}

// Sweep removes every handle whose refcount is zero. It is safe to
// call concurrently with Acquire.
func (p *Pool) Sweep() {
	p.mu.Lock()
	candidates := make([]*Handle, 0, len(p.handles))
	for _, h := range p.handles {
		candidates = append(candidates, h)
	}
	p.mu.Unlock()

	for _, h := range candidates {
		if !h.sweepable() {
			continue
		}
		h.mu.Lock()
		h.removed = true
		dir := h.dir
		h.mu.Unlock()

		if err := os.RemoveAll(dir); err != nil {
			logger.Error("workspace: can not remove %s: %v", dir, err)
			continue
		}
		p.mu.Lock()
		delete(p.handles, dir)
		p.mu.Unlock()
	}
}

// RunSweeper runs Sweep every interval until ctx is cancelled. It is
// meant to be registered with app.App.AddProcess.
func (p *Pool) RunSweeper(ctx context.Context, interval time.Duration) {
	logger.Info("starting workspace sweeper")
	t := time.Tick(interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping workspace sweeper")
			return
		case <-t:
			p.Sweep()
		}
	}
}
