// Package resultcache memoizes compile results under their content
// fingerprint (spec.md §4.5, component C8).
//
// Grounded directly on lib/cache.LRUSizeCache: its single-flight
// getter and approximate-LRU-under-a-byte-budget eviction are reused
// unmodified as the underlying engine. Two things are new here: large
// entries are gzip-compacted above a configurable threshold (the
// teacher has no analog; grounded on ppb's action cache using
// klauspost/compress for the same "don't keep huge blobs inflated in
// memory" reason, see compile/ActionCache.go's getBulkCompress), and
// the cache's remover callback releases a retained workspace.Handle so
// that a cached binary's backing directory survives until the cache
// entry itself is evicted.
package resultcache

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/klauspost/compress/gzip"

	"compilebroker/config"
	"compilebroker/domain"
	"compilebroker/fingerprint"
	"compilebroker/lib/cache"
	"compilebroker/metrics"
	"compilebroker/workspace"
)

// Entry is one cached compile result, optionally holding the
// workspace that backs its OutputFilePath.
type Entry struct {
	Result domain.CompileResult
	Handle *workspace.Handle
}

type storedValue struct {
	compressed []byte // non-nil if Result was gzip-compacted
	plain      *Entry
	rawSize    uint64
}

// Compute builds a compile result from scratch. It returns the
// workspace handle to retain alongside the cached result, or nil if
// the result does not need its workspace kept (e.g. asm-only output).
type Compute func() (result *domain.CompileResult, handle *workspace.Handle, err error)

// Cache is the published result cache.
type Cache struct {
	inner         *cache.LRUSizeCache[fingerprint.Digest, storedValue]
	compressAbove int64
	metrics       *metrics.Collector

	pending sync.Map // fingerprint.Digest -> *Compute
}

// SetMetrics attaches a metrics collector. Optional.
func (c *Cache) SetMetrics(m *metrics.Collector) {
	c.metrics = m
}

// New builds a Cache bounded by cfg.SizeBound bytes, compacting any
// entry whose serialized size exceeds cfg.CompressAbove.
func New(cfg *config.CacheConfig) *Cache {
	c := &Cache{compressAbove: int64(cfg.CompressAbove)}
	c.inner = cache.NewLRUSizeCache[fingerprint.Digest, storedValue](
		uint64(cfg.SizeBound),
		c.load,
		c.remove,
	)
	return c
}

// GetOrCompute returns the cached entry for key, computing it via
// compute if absent. Concurrent callers for the same key block on the
// first caller's compute (single-flight, inherited from
// lib/cache.LRUSizeCache); only the first caller's compute function is
// actually invoked.
//
// A result whose OkToCache is false (timeouts, truncations, a failed
// objdump) is evicted the instant it is loaded, before returning to
// any caller: lib/cache.LRUSizeCache's getter contract has no "load
// but don't keep" signal, so this stores it only long enough to hand
// it back once, then removes it, matching spec.md §8's "not present
// in the cache after the call returns."
func (c *Cache) GetOrCompute(key fingerprint.Digest, compute Compute) (*Entry, error) {
	computed := false
	wrapped := Compute(func() (*domain.CompileResult, *workspace.Handle, error) {
		computed = true
		return compute()
	})
	c.pending.LoadOrStore(key, &wrapped)
	stored, err := c.inner.Get(key)
	// A closure that lost the race, or arrived for an already-cached
	// key, is still pending; drop it so a later load never runs it.
	c.pending.CompareAndDelete(key, &wrapped)
	c.metrics.ObserveCacheLookup(!computed)
	if err != nil {
		return nil, err
	}
	entry := c.inflate(stored)
	if entry != nil && !entry.Result.OkToCache {
		c.inner.Remove(key)
	}
	return entry, nil
}

func (c *Cache) load(key fingerprint.Digest) (*storedValue, error, uint64) {
	computeAny, ok := c.pending.LoadAndDelete(key)
	if !ok {
		return nil, errNoComputeRegistered, 0
	}
	compute := *computeAny.(*Compute)

	result, handle, err := compute()
	if err != nil {
		return nil, err, 0
	}

	payload, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return nil, marshalErr, 0
	}

	entry := &Entry{Result: *result, Handle: handle}
	stored := &storedValue{plain: entry, rawSize: uint64(len(payload))}

	// Entries that retain a workspace handle (backing a downloadable
	// binary) are never compacted: the handle itself is not part of
	// the serialized payload, and inflating a compressed entry can't
	// recover it, which would leak the workspace past eviction.
	if handle == nil && c.compressAbove > 0 && int64(len(payload)) > c.compressAbove {
		compressed, compressErr := gzipCompress(payload)
		if compressErr == nil && len(compressed) < len(payload) {
			stored.compressed = compressed
			stored.plain = nil
		}
	}

	return stored, nil, stored.rawSize
}

func (c *Cache) remove(_ fingerprint.Digest, stored *storedValue) {
	entry := c.inflate(stored)
	if entry != nil && entry.Handle != nil {
		entry.Handle.Release()
	}
}

func (c *Cache) inflate(stored *storedValue) *Entry {
	if stored == nil {
		return nil
	}
	if stored.plain != nil {
		return stored.plain
	}
	payload, err := gzipDecompress(stored.compressed)
	if err != nil {
		return nil
	}
	var result domain.CompileResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil
	}
	return &Entry{Result: result}
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var errNoComputeRegistered = errNoCompute{}

type errNoCompute struct{}

func (errNoCompute) Error() string {
	return "resultcache: Get called for key with no registered compute (internal misuse)"
}
