package thumbnail

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"media-browser/internal/logging"
	"media-browser/internal/mediatypes"
	"media-browser/internal/memory"
	"media-browser/internal/metrics"
	"media-browser/internal/workerpool"
)

// generator is the generation dependency of the Manager. *Generator is
// the production implementation; tests substitute counting stubs.
type generator interface {
	Generate(ctx context.Context, path string, req Request) string
}

// Manager composes the cache, worker pool, and generator into the public
// thumbnail pipeline. It guarantees at most one generation in flight per
// cache key; concurrent requests for the same key share one execution.
type Manager struct {
	cache *Cache
	pool  *workerpool.Pool
	gen   generator
	mem   *memory.Monitor // optional; nil disables preload shedding

	mu       sync.Mutex
	inflight map[string]*workerpool.Task

	idx *pathIndex

	sweepStop   chan struct{}
	disposeOnce sync.Once
}

// NewManager wires the pipeline together and starts the background TTL
// sweep. sweepInterval <= 0 disables the sweep. mem may be nil.
func NewManager(cache *Cache, pool *workerpool.Pool, gen *Generator, mem *memory.Monitor, sweepInterval time.Duration) *Manager {
	m := newManager(cache, pool, gen, mem, sweepInterval)
	return m
}

func newManager(cache *Cache, pool *workerpool.Pool, gen generator, mem *memory.Monitor, sweepInterval time.Duration) *Manager {
	m := &Manager{
		cache:     cache,
		pool:      pool,
		gen:       gen,
		mem:       mem,
		inflight:  make(map[string]*workerpool.Task),
		idx:       newPathIndex(),
		sweepStop: make(chan struct{}),
	}

	// Keep the path index exact: every cache removal, whatever the
	// reason, drops the key from the index.
	cache.SetEvictionCallback(m.idx.remove)

	if sweepInterval > 0 {
		go m.sweepLoop(sweepInterval)
	}

	return m
}

// GetThumbnail returns an encoded thumbnail for path, generating and
// caching it on a miss. The only error paths are invalid option values
// and caller context cancellation; decode failures of any sort resolve
// to a placeholder payload.
func (m *Manager) GetThumbnail(ctx context.Context, path string, req Request) (string, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	key := Key(path, req)
	if payload, ok := m.cache.Get(key); ok {
		return payload, nil
	}

	task := m.ensureJob(key, path, req)
	if task == nil {
		// Pool shut down underneath us; degrade synchronously.
		return Placeholder(filepath.Base(path), mediatypes.FileTypeForPath(path), req.Width, req.Height), nil
	}

	payload, err := task.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Worker fault: substitute a placeholder rather than surface it.
		logging.Warn("Thumbnail job for %s failed: %v", path, err)
		return Placeholder(filepath.Base(path), mediatypes.FileTypeForPath(path), req.Width, req.Height), nil
	}
	return payload, nil
}

// GetThumbnailBatch returns one payload per input path. Cached entries
// are served directly; the remainder generate in parallel through the
// pool. The result always has exactly one entry per distinct input path.
func (m *Manager) GetThumbnailBatch(ctx context.Context, paths []string, req Request) (map[string]string, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	results := make(map[string]string, len(paths))
	pending := make(map[string]*workerpool.Task, len(paths))

	for _, path := range paths {
		if _, done := results[path]; done {
			continue
		}
		if _, queued := pending[path]; queued {
			continue
		}

		key := Key(path, req)
		if payload, ok := m.cache.Get(key); ok {
			results[path] = payload
			continue
		}
		if task := m.ensureJob(key, path, req); task != nil {
			pending[path] = task
		} else {
			results[path] = Placeholder(filepath.Base(path), mediatypes.FileTypeForPath(path), req.Width, req.Height)
		}
	}

	for path, task := range pending {
		payload, err := task.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			payload = Placeholder(filepath.Base(path), mediatypes.FileTypeForPath(path), req.Width, req.Height)
		}
		results[path] = payload
	}

	return results, nil
}

// PreloadThumbnails warms the cache for the given paths. It is
// best-effort and fire-and-forget: work is skipped entirely under memory
// pressure, generation failures are only logged, and the call returns
// once the misses have been dispatched.
func (m *Manager) PreloadThumbnails(paths []string, req Request) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		logging.Warn("Preload skipped: %v", err)
		return
	}

	if m.mem != nil && m.mem.IsPaused() {
		logging.Debug("Preload of %d thumbnails skipped due to memory pressure", len(paths))
		return
	}

	dispatched := 0
	for _, path := range paths {
		key := Key(path, req)
		if m.cache.Has(key) {
			continue
		}
		if task := m.ensureJob(key, path, req); task != nil {
			dispatched++
		}
	}

	if dispatched > 0 {
		logging.Debug("Preload dispatched %d thumbnail generations", dispatched)
	}
}

// InvalidateCache removes every cached variant of path, using the
// path-to-keys index for exact coverage of all option combinations.
// Returns true if at least one entry was removed.
func (m *Manager) InvalidateCache(path string) bool {
	removed := false
	for _, key := range m.idx.keys(path) {
		if m.cache.Delete(key) {
			removed = true
		}
	}
	return removed
}

// ClearCache empties the thumbnail cache.
func (m *Manager) ClearCache() {
	m.cache.Clear()
}

// GetCacheStats returns a snapshot of cache performance counters.
func (m *Manager) GetCacheStats() Stats {
	return m.cache.Stats()
}

// Dispose shuts down the pipeline: the TTL sweep stops, the pool drains
// within a bounded grace period, and the cache is cleared. Safe to call
// more than once.
func (m *Manager) Dispose() {
	m.disposeOnce.Do(func() {
		close(m.sweepStop)
		m.pool.Shutdown(5 * time.Second)
		m.cache.Clear()
		logging.Info("Thumbnail manager disposed")
	})
}

// ensureJob returns the in-flight task for key, creating one if none
// exists. Returns nil only if the pool has been shut down.
func (m *Manager) ensureJob(key, path string, req Request) *workerpool.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task, ok := m.inflight[key]; ok {
		metrics.DeduplicatedRequests.Inc()
		return task
	}

	task, err := m.pool.Submit(func(ctx context.Context) (string, error) {
		// Deregister on every exit path. A panicking generator resolves
		// the task with an error; leaving the key registered would pin
		// that dead task as the in-flight handle forever.
		defer func() {
			m.mu.Lock()
			delete(m.inflight, key)
			m.mu.Unlock()
			metrics.InFlightGenerations.Dec()
		}()

		payload := m.gen.Generate(ctx, path, req)

		// Index before Set: if insertion immediately evicts this entry,
		// the eviction callback has something to remove. A missing index
		// key would leak a stale variant past InvalidateCache; when Set
		// declines to store, the key is taken back out.
		m.idx.add(path, key)
		if !m.cache.Set(key, path, payload) {
			m.idx.remove(key, path)
		}

		return payload, nil
	})
	if err != nil {
		logging.Debug("Thumbnail job for %s not submitted: %v", path, err)
		return nil
	}

	m.inflight[key] = task
	metrics.InFlightGenerations.Inc()
	return task
}

func (m *Manager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cache.Cleanup()
		case <-m.sweepStop:
			return
		}
	}
}

// pathIndex is the secondary index from source path to the set of active
// cache keys derived from it. It makes invalidation exact instead of
// guessing at common option fingerprints.
type pathIndex struct {
	mu     sync.Mutex
	byPath map[string]map[string]struct{}
}

func newPathIndex() *pathIndex {
	return &pathIndex{byPath: make(map[string]map[string]struct{})}
}

func (p *pathIndex) add(path, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.byPath[path]
	if !ok {
		set = make(map[string]struct{})
		p.byPath[path] = set
	}
	set[key] = struct{}{}
}

func (p *pathIndex) remove(key, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if set, ok := p.byPath[path]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(p.byPath, path)
		}
	}
}

func (p *pathIndex) keys(path string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.byPath[path]
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}
