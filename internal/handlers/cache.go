package handlers

import (
	"net/http"

	"media-browser/internal/logging"
)

// InvalidateCache removes every cached thumbnail variant of the path
// given in the "path" query parameter.
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")

	fullPath, err := h.resolvePath(rel)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	removed := h.manager.InvalidateCache(fullPath)
	logging.Debug("Cache invalidation for %s: removed=%v", rel, removed)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"path":        rel,
		"invalidated": removed,
	})
}

// ClearCache empties the thumbnail cache.
func (h *Handlers) ClearCache(w http.ResponseWriter, _ *http.Request) {
	h.manager.ClearCache()
	logging.Info("Thumbnail cache cleared via API")

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "cleared"})
}

// CacheStats returns a snapshot of cache performance counters.
func (h *Handlers) CacheStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.manager.GetCacheStats())
}
