package handlers

import (
	"encoding/json"
	"net/http"

	"media-browser/internal/logging"
	"media-browser/internal/thumbnail"
)

// maxBatchSize bounds a single batch or preload request. Larger sets
// should be split by the client; the pool queue is unbounded and a
// single huge request would starve interactive traffic.
const maxBatchSize = 200

// ThumbnailResponse is the single-thumbnail response body.
type ThumbnailResponse struct {
	Path      string `json:"path"`
	Thumbnail string `json:"thumbnail"`
}

// batchRequest is the request body for batch and preload endpoints.
type batchRequest struct {
	Paths   []string `json:"paths"`
	Width   int      `json:"width,omitempty"`
	Height  int      `json:"height,omitempty"`
	Quality int      `json:"quality,omitempty"`
	Format  string   `json:"format,omitempty"`
}

// GetThumbnail returns a single thumbnail as a data URL. Options come
// from query parameters (width, height, quality, format, seek); missing
// options use the configured defaults.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")

	fullPath, err := h.resolvePath(rel)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := h.requestFromQuery(r.URL.Query())

	payload, err := h.manager.GetThumbnail(r.Context(), fullPath, req)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing useful to write.
			return
		}
		logging.Debug("Thumbnail request rejected for %s: %v", rel, err)
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, ThumbnailResponse{Path: rel, Thumbnail: payload})
}

// BatchThumbnails returns thumbnails for a set of paths in one call.
// The response maps each requested path to its payload.
func (h *Handlers) BatchThumbnails(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Paths) == 0 {
		writeJSONError(w, "paths is required", http.StatusBadRequest)
		return
	}
	if len(body.Paths) > maxBatchSize {
		writeJSONError(w, "too many paths in one request", http.StatusBadRequest)
		return
	}

	fullPaths := make([]string, 0, len(body.Paths))
	relByFull := make(map[string]string, len(body.Paths))
	for _, rel := range body.Paths {
		fullPath, err := h.resolvePath(rel)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		fullPaths = append(fullPaths, fullPath)
		relByFull[fullPath] = rel
	}

	req := h.requestFromBody(body)

	results, err := h.manager.GetThumbnailBatch(r.Context(), fullPaths, req)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Map back to the client's own path spelling.
	thumbnails := make(map[string]string, len(results))
	for fullPath, payload := range results {
		thumbnails[relByFull[fullPath]] = payload
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{"thumbnails": thumbnails})
}

// PreloadThumbnails dispatches best-effort cache warming for a set of
// paths and returns immediately.
func (h *Handlers) PreloadThumbnails(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Paths) > maxBatchSize {
		writeJSONError(w, "too many paths in one request", http.StatusBadRequest)
		return
	}

	fullPaths := make([]string, 0, len(body.Paths))
	for _, rel := range body.Paths {
		fullPath, err := h.resolvePath(rel)
		if err != nil {
			logging.Debug("Preload skipping invalid path %q", rel)
			continue
		}
		fullPaths = append(fullPaths, fullPath)
	}

	h.manager.PreloadThumbnails(fullPaths, h.requestFromBody(body))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]interface{}{
		"status": "accepted",
		"count":  len(fullPaths),
	})
}

func (h *Handlers) requestFromBody(body batchRequest) thumbnail.Request {
	req := h.defaults
	if body.Width > 0 {
		req.Width = body.Width
	}
	if body.Height > 0 {
		req.Height = body.Height
	}
	if body.Quality > 0 {
		req.Quality = body.Quality
	}
	if body.Format != "" {
		req.Format = body.Format
	}
	return req
}
