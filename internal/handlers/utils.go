package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-browser/internal/logging"
	"media-browser/internal/thumbnail"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// resolvePath joins a client-supplied relative path with the media
// directory and rejects anything that escapes it.
func (h *Handlers) resolvePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Join(h.mediaDir, filepath.FromSlash(rel))

	absPath, err := filepath.Abs(fullPath)
	if err != nil || !isSubPath(h.mediaDir, absPath) {
		return "", fmt.Errorf("invalid path")
	}

	return absPath, nil
}

func isSubPath(parent, child string) bool {
	parent, _ = filepath.Abs(parent)
	child, _ = filepath.Abs(child)
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// requestFromQuery builds thumbnail options from query parameters,
// starting from the configured defaults.
func (h *Handlers) requestFromQuery(query url.Values) thumbnail.Request {
	req := h.defaults

	if v, err := strconv.Atoi(query.Get("width")); err == nil && v > 0 {
		req.Width = v
	}
	if v, err := strconv.Atoi(query.Get("height")); err == nil && v > 0 {
		req.Height = v
	}
	if v, err := strconv.Atoi(query.Get("quality")); err == nil && v > 0 {
		req.Quality = v
	}
	if v := query.Get("format"); v != "" {
		req.Format = v
	}
	if v, err := strconv.ParseFloat(query.Get("seek"), 64); err == nil && v >= 0 {
		req.TimeOffset = time.Duration(v * float64(time.Second))
	}

	return req
}
