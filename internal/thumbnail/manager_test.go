package thumbnail

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-browser/internal/memory"
	"media-browser/internal/workerpool"
)

// stubGenerator counts invocations and returns a deterministic payload.
type stubGenerator struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *stubGenerator) Generate(ctx context.Context, path string, req Request) string {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}
	return fmt.Sprintf("payload:%s:%dx%d", filepath.Base(path), req.Width, req.Height)
}

func newTestManager(t *testing.T, gen generator) (*Manager, *Cache) {
	t.Helper()
	cache := NewCache(100, 1<<20, time.Hour)
	pool := workerpool.New(4)
	m := newManager(cache, pool, gen, nil, 0)
	t.Cleanup(m.Dispose)
	return m, cache
}

func TestGetThumbnailGeneratesAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	first, err := m.GetThumbnail(context.Background(), path, Request{})
	if err != nil {
		t.Fatalf("GetThumbnail() error = %v", err)
	}
	if !strings.HasPrefix(first, "payload:photo.jpg") {
		t.Errorf("payload = %q", first)
	}

	second, err := m.GetThumbnail(context.Background(), path, Request{})
	if err != nil {
		t.Fatalf("GetThumbnail() error = %v", err)
	}
	if second != first {
		t.Errorf("second call = %q, want cached %q", second, first)
	}
	if calls := gen.calls.Load(); calls != 1 {
		t.Errorf("generator invoked %d times, want 1", calls)
	}
}

func TestGetThumbnailInvalidOptions(t *testing.T) {
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	if _, err := m.GetThumbnail(context.Background(), "/x.jpg", Request{Quality: 500}); err == nil {
		t.Error("GetThumbnail() with invalid quality returned nil error")
	}
	if calls := gen.calls.Load(); calls != 0 {
		t.Errorf("generator invoked %d times for invalid options", calls)
	}
}

func TestGetThumbnailDeduplicatesConcurrentMisses(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	gen := &stubGenerator{delay: 50 * time.Millisecond}
	m, _ := newTestManager(t, gen)

	const callers = 10
	results := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.GetThumbnail(context.Background(), path, Request{})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d payload = %q, want %q", i, results[i], results[0])
		}
	}

	if calls := gen.calls.Load(); calls != 1 {
		t.Errorf("generator invoked %d times for %d concurrent requests, want 1", calls, callers)
	}
}

func TestGetThumbnailDistinctKeysRunIndependently(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	small, err := m.GetThumbnail(context.Background(), path, Request{Width: 64, Height: 64})
	if err != nil {
		t.Fatal(err)
	}
	large, err := m.GetThumbnail(context.Background(), path, Request{Width: 512, Height: 512})
	if err != nil {
		t.Fatal(err)
	}

	if small == large {
		t.Error("different option sets returned the same payload")
	}
	if calls := gen.calls.Load(); calls != 2 {
		t.Errorf("generator invoked %d times, want 2", calls)
	}
}

// faultOnceGenerator panics on its first invocation and behaves like
// stubGenerator afterwards.
type faultOnceGenerator struct {
	stubGenerator
	faulted atomic.Bool
}

func (s *faultOnceGenerator) Generate(ctx context.Context, path string, req Request) string {
	if s.faulted.CompareAndSwap(false, true) {
		s.calls.Add(1)
		panic("decoder blew up")
	}
	return s.stubGenerator.Generate(ctx, path, req)
}

func TestGetThumbnailRecoversAfterGeneratorPanic(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	gen := &faultOnceGenerator{}
	m, _ := newTestManager(t, gen)

	// First request hits the panicking generation and degrades.
	first, err := m.GetThumbnail(context.Background(), path, Request{})
	if err != nil {
		t.Fatalf("GetThumbnail() after worker fault error = %v", err)
	}
	if !strings.HasPrefix(first, "data:image/png;base64,") {
		t.Errorf("faulted request payload = %.30q, want placeholder", first)
	}

	// The failed generation must not stay registered as in flight: the
	// next miss has to invoke the generator again and cache the result.
	second, err := m.GetThumbnail(context.Background(), path, Request{})
	if err != nil {
		t.Fatalf("GetThumbnail() error = %v", err)
	}
	if !strings.HasPrefix(second, "payload:photo.jpg") {
		t.Errorf("second payload = %q, want regenerated result", second)
	}
	if calls := gen.calls.Load(); calls != 2 {
		t.Errorf("generator invoked %d times, want 2", calls)
	}

	// And the regenerated payload is now served from the cache.
	if _, err := m.GetThumbnail(context.Background(), path, Request{}); err != nil {
		t.Fatal(err)
	}
	if calls := gen.calls.Load(); calls != 2 {
		t.Errorf("generator invoked %d times after cache fill, want 2", calls)
	}
}

func TestIndexDropsKeyWhenCacheDeclines(t *testing.T) {
	dir := t.TempDir()
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	// The source never exists, so the generated payload cannot be
	// cached; the path index must not keep a key for it.
	missing := filepath.Join(dir, "gone.jpg")
	if _, err := m.GetThumbnail(context.Background(), missing, Request{}); err != nil {
		t.Fatal(err)
	}

	if keys := m.idx.keys(missing); len(keys) != 0 {
		t.Errorf("path index holds %d keys for an uncached path, want 0", len(keys))
	}
	if m.InvalidateCache(missing) {
		t.Error("InvalidateCache() = true for a path that was never cached")
	}
}

func TestGetThumbnailStaleEntryRegenerates(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	if _, err := m.GetThumbnail(context.Background(), path, Request{}); err != nil {
		t.Fatal(err)
	}

	touchNewer(t, path)

	if _, err := m.GetThumbnail(context.Background(), path, Request{}); err != nil {
		t.Fatal(err)
	}
	if calls := gen.calls.Load(); calls != 2 {
		t.Errorf("generator invoked %d times after source change, want 2", calls)
	}
}

func TestGetThumbnailBatchCompleteness(t *testing.T) {
	dir := t.TempDir()
	cached := writeSourceFile(t, dir, "cached.jpg")
	uncached := writeSourceFile(t, dir, "uncached.jpg")
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	// Warm one of the two inputs.
	if _, err := m.GetThumbnail(context.Background(), cached, Request{}); err != nil {
		t.Fatal(err)
	}
	warmCalls := gen.calls.Load()

	results, err := m.GetThumbnailBatch(context.Background(), []string{cached, uncached}, Request{})
	if err != nil {
		t.Fatalf("GetThumbnailBatch() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("batch returned %d entries, want 2", len(results))
	}
	for _, path := range []string{cached, uncached} {
		if results[path] == "" {
			t.Errorf("no payload for %s", path)
		}
	}
	if calls := gen.calls.Load() - warmCalls; calls != 1 {
		t.Errorf("batch invoked generator %d times, want 1 (only for the miss)", calls)
	}
}

func TestGetThumbnailBatchDuplicateInputs(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	results, err := m.GetThumbnailBatch(context.Background(), []string{path, path, path}, Request{})
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 1 {
		t.Errorf("batch returned %d entries for one distinct path, want 1", len(results))
	}
	if calls := gen.calls.Load(); calls != 1 {
		t.Errorf("generator invoked %d times, want 1", calls)
	}
}

func TestPreloadThumbnailsWarmsCache(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeSourceFile(t, dir, "a.jpg"),
		writeSourceFile(t, dir, "b.jpg"),
	}
	gen := &stubGenerator{}
	m, cache := newTestManager(t, gen)

	m.PreloadThumbnails(paths, Request{})

	// Fire-and-forget: poll for completion.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cache.Has(Key(paths[0], Request{}.Normalize())) && cache.Has(Key(paths[1], Request{}.Normalize())) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, path := range paths {
		if !cache.Has(Key(path, Request{}.Normalize())) {
			t.Errorf("preload did not cache %s", path)
		}
	}

	// A follow-up get must be a pure cache hit.
	before := gen.calls.Load()
	if _, err := m.GetThumbnail(context.Background(), paths[0], Request{}); err != nil {
		t.Fatal(err)
	}
	if gen.calls.Load() != before {
		t.Error("GetThumbnail after preload invoked the generator")
	}
}

func TestPreloadSkippedUnderMemoryPressure(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "a.jpg")
	gen := &stubGenerator{}

	memCfg := memory.DefaultConfig()
	memCfg.LimitBytes = 1 // any heap usage is critical
	memCfg.CheckInterval = time.Millisecond
	mon := memory.NewMonitor(memCfg)
	mon.Start()
	t.Cleanup(mon.Stop)

	cache := NewCache(100, 1<<20, time.Hour)
	pool := workerpool.New(2)
	m := newManager(cache, pool, gen, mon, 0)
	t.Cleanup(m.Dispose)

	// Wait for the monitor to sample and trip.
	deadline := time.Now().Add(time.Second)
	for !mon.IsPaused() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if !mon.IsPaused() {
		t.Fatal("memory monitor never reported pressure")
	}

	m.PreloadThumbnails([]string{path}, Request{})
	time.Sleep(20 * time.Millisecond)

	if calls := gen.calls.Load(); calls != 0 {
		t.Errorf("preload dispatched %d generations under memory pressure, want 0", calls)
	}
}

func TestInvalidateCacheRemovesAllVariants(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	other := writeSourceFile(t, dir, "other.jpg")
	gen := &stubGenerator{}
	m, cache := newTestManager(t, gen)

	variants := []Request{
		{Width: 64, Height: 64},
		{Width: 256, Height: 256},
		{Width: 256, Height: 256, Format: "png"},
	}
	for _, req := range variants {
		if _, err := m.GetThumbnail(context.Background(), path, req); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := m.GetThumbnail(context.Background(), other, Request{}); err != nil {
		t.Fatal(err)
	}

	if !m.InvalidateCache(path) {
		t.Error("InvalidateCache() = false with cached variants present")
	}

	for _, req := range variants {
		if cache.Has(Key(path, req.Normalize())) {
			t.Errorf("variant %+v survived invalidation", req)
		}
	}
	if !cache.Has(Key(other, Request{}.Normalize())) {
		t.Error("invalidation of one path removed another path's entry")
	}

	if m.InvalidateCache(path) {
		t.Error("second InvalidateCache() = true, want false")
	}
}

func TestClearCacheAndStats(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	if _, err := m.GetThumbnail(context.Background(), path, Request{}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetThumbnail(context.Background(), path, Request{}); err != nil {
		t.Fatal(err)
	}

	stats := m.GetCacheStats()
	if stats.Size != 1 {
		t.Errorf("Size = %d, want 1", stats.Size)
	}
	if stats.HitRate <= 0 {
		t.Errorf("HitRate = %v, want > 0", stats.HitRate)
	}

	m.ClearCache()
	if m.GetCacheStats().Size != 0 {
		t.Error("cache not empty after ClearCache")
	}
}

func TestDisposeDegradesGracefully(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "photo.jpg")
	gen := &stubGenerator{}
	m, _ := newTestManager(t, gen)

	m.Dispose()
	m.Dispose() // idempotent

	payload, err := m.GetThumbnail(context.Background(), path, Request{})
	if err != nil {
		t.Fatalf("GetThumbnail() after Dispose error = %v", err)
	}
	if payload == "" {
		t.Error("GetThumbnail() after Dispose returned empty payload")
	}
	if !strings.HasPrefix(payload, "data:image/png;base64,") {
		t.Errorf("payload = %.30s, want synchronous placeholder", payload)
	}
}

func TestManagerEndToEndWithRealGenerator(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "real.png", 80, 60)

	cache := NewCache(10, 1<<20, time.Hour)
	pool := workerpool.New(2)
	m := NewManager(cache, pool, newTestGenerator(), nil, 0)
	t.Cleanup(m.Dispose)

	payload, err := m.GetThumbnail(context.Background(), path, Request{Width: 32, Height: 32})
	if err != nil {
		t.Fatalf("GetThumbnail() error = %v", err)
	}

	img := decodePayload(t, payload)
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Errorf("thumbnail = %dx%d, want 32x32", img.Bounds().Dx(), img.Bounds().Dy())
	}
}
