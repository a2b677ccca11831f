package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-browser/internal/config"
	"media-browser/internal/thumbnail"
	"media-browser/internal/workerpool"
)

func testConfig(mediaDir string) *config.Config {
	cfg := &config.Config{}
	cfg.MediaDir = mediaDir
	cfg.Thumbnails.DefaultWidth = 256
	cfg.Thumbnails.DefaultHeight = 256
	cfg.Thumbnails.DefaultQuality = 80
	cfg.Thumbnails.DefaultFormat = "jpeg"
	cfg.Thumbnails.VideoSeekSeconds = 1
	return cfg
}

func newTestHandlers(t *testing.T) (*Handlers, string) {
	t.Helper()

	mediaDir := t.TempDir()
	cache := thumbnail.NewCache(100, 1<<20, time.Hour)
	pool := workerpool.New(2)
	gen := thumbnail.NewGenerator(thumbnail.GeneratorConfig{UseVips: false})
	manager := thumbnail.NewManager(cache, pool, gen, nil, 0)
	t.Cleanup(manager.Dispose)

	return New(manager, testConfig(mediaDir)), mediaDir
}

func writePNG(t *testing.T, dir, name string, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
	return path
}

func TestGetThumbnailSuccess(t *testing.T) {
	h, mediaDir := newTestHandlers(t)
	writePNG(t, mediaDir, "pic.png", 80, 60)

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=pic.png&width=32&height=32", nil)
	rec := httptest.NewRecorder()
	h.GetThumbnail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ThumbnailResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Path != "pic.png" {
		t.Errorf("Path = %q, want pic.png", resp.Path)
	}
	if !strings.HasPrefix(resp.Thumbnail, "data:image/") {
		t.Errorf("Thumbnail = %.30q, want data URL", resp.Thumbnail)
	}
}

func TestGetThumbnailMissingFileReturnsPlaceholder(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=gone.png", nil)
	rec := httptest.NewRecorder()
	h.GetThumbnail(rec, req)

	// Generation never fails; a missing source degrades to a placeholder.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ThumbnailResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.Thumbnail, "data:image/png;base64,") {
		t.Errorf("Thumbnail = %.30q, want placeholder data URL", resp.Thumbnail)
	}
}

func TestGetThumbnailRequiresPath(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail", nil)
	rec := httptest.NewRecorder()
	h.GetThumbnail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetThumbnailRejectsTraversal(t *testing.T) {
	h, _ := newTestHandlers(t)

	for _, path := range []string{"../etc/passwd", "../../secret", "a/../../b"} {
		req := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path="+path, nil)
		rec := httptest.NewRecorder()
		h.GetThumbnail(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("path %q: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestGetThumbnailInvalidOptions(t *testing.T) {
	h, mediaDir := newTestHandlers(t)
	writePNG(t, mediaDir, "pic.png", 40, 40)

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=pic.png&quality=500", nil)
	rec := httptest.NewRecorder()
	h.GetThumbnail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBatchThumbnails(t *testing.T) {
	h, mediaDir := newTestHandlers(t)
	writePNG(t, mediaDir, "a.png", 40, 40)
	writePNG(t, mediaDir, "b.png", 40, 40)

	body, _ := json.Marshal(map[string]interface{}{
		"paths":  []string{"a.png", "b.png"},
		"width":  32,
		"height": 32,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/thumbnail/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.BatchThumbnails(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Thumbnails map[string]string `json:"thumbnails"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Thumbnails) != 2 {
		t.Fatalf("got %d thumbnails, want 2", len(resp.Thumbnails))
	}
	for _, rel := range []string{"a.png", "b.png"} {
		if !strings.HasPrefix(resp.Thumbnails[rel], "data:image/") {
			t.Errorf("no payload for %s", rel)
		}
	}
}

func TestBatchThumbnailsValidation(t *testing.T) {
	h, _ := newTestHandlers(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"empty paths", `{"paths":[]}`},
		{"traversal", `{"paths":["../x"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/thumbnail/batch", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.BatchThumbnails(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestBatchThumbnailsTooManyPaths(t *testing.T) {
	h, _ := newTestHandlers(t)

	paths := make([]string, maxBatchSize+1)
	for i := range paths {
		paths[i] = "p.png"
	}
	body, _ := json.Marshal(map[string]interface{}{"paths": paths})

	req := httptest.NewRequest(http.MethodPost, "/api/thumbnail/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.BatchThumbnails(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPreloadThumbnails(t *testing.T) {
	h, mediaDir := newTestHandlers(t)
	writePNG(t, mediaDir, "a.png", 40, 40)

	body := `{"paths":["a.png","bad/../../escape.png"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/thumbnail/preload", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PreloadThumbnails(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var resp struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "accepted" {
		t.Errorf("status = %q", resp.Status)
	}
	// The escaping path is dropped, not an error.
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
}

func TestInvalidateCache(t *testing.T) {
	h, mediaDir := newTestHandlers(t)
	writePNG(t, mediaDir, "pic.png", 40, 40)

	// Warm the cache first.
	warm := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=pic.png", nil)
	h.GetThumbnail(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodDelete, "/api/cache?path=pic.png", nil)
	rec := httptest.NewRecorder()
	h.InvalidateCache(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Invalidated bool `json:"invalidated"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Invalidated {
		t.Error("invalidated = false after a cached request")
	}

	// Second invalidation has nothing to remove.
	rec = httptest.NewRecorder()
	h.InvalidateCache(rec, httptest.NewRequest(http.MethodDelete, "/api/cache?path=pic.png", nil))
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Invalidated {
		t.Error("invalidated = true with empty cache")
	}
}

func TestClearCacheAndStats(t *testing.T) {
	h, mediaDir := newTestHandlers(t)
	writePNG(t, mediaDir, "pic.png", 40, 40)

	warm := httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=pic.png", nil)
	h.GetThumbnail(httptest.NewRecorder(), warm)

	rec := httptest.NewRecorder()
	h.ClearCache(rec, httptest.NewRequest(http.MethodPost, "/api/cache/clear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}

	var stats thumbnail.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Size != 0 {
		t.Errorf("Size = %d after clear, want 0", stats.Size)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" {
		t.Errorf("health status = %q", health.Status)
	}
	if health.GoVersion == "" {
		t.Error("missing goVersion")
	}

	rec = httptest.NewRecorder()
	h.LivenessCheck(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("livez status = %d", rec.Code)
	}

	// HEAD gets headers only.
	rec = httptest.NewRecorder()
	h.LivenessCheck(rec, httptest.NewRequest(http.MethodHead, "/livez", nil))
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD livez body = %q, want empty", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		child  string
		want   bool
	}{
		{"direct child", "/media", "/media/pic.png", true},
		{"nested child", "/media", "/media/a/b/pic.png", true},
		{"parent itself", "/media", "/media", true},
		{"sibling", "/media", "/mediafiles/pic.png", false},
		{"escape", "/media", "/etc/passwd", false},
		{"dot dot", "/media", "/media/..", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSubPath(tt.parent, tt.child); got != tt.want {
				t.Errorf("isSubPath(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "media_browser_") {
		t.Error("metrics output missing media_browser_ collectors")
	}
}
