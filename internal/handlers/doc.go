// Package handlers provides HTTP request handlers for the media browser API.
//
// It includes handlers for:
//   - Thumbnail retrieval, batch retrieval, and preloading
//   - Cache invalidation, clearing, and statistics
//   - Health checks and Prometheus metrics
package handlers
