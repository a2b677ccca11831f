package thumbnail

import (
	"fmt"
	"time"
)

// Default request values, applied by Normalize.
const (
	DefaultWidth   = 256
	DefaultHeight  = 256
	DefaultQuality = 80
	DefaultFormat  = "jpeg"
	DefaultSeek    = time.Second

	// MaxDimension bounds requested thumbnail dimensions. Anything larger
	// is programmer misuse, not a thumbnail.
	MaxDimension = 4096
)

// Request describes the desired thumbnail for a source file. It is a
// value type; Normalize returns an adjusted copy.
type Request struct {
	Width   int
	Height  int
	Quality int    // JPEG quality, 1-100
	Format  string // "jpeg" or "png"

	// TimeOffset selects the frame for video sources. Zero means the
	// default seek (1s).
	TimeOffset time.Duration
}

// Normalize fills zero-valued fields with defaults.
func (r Request) Normalize() Request {
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.Quality == 0 {
		r.Quality = DefaultQuality
	}
	if r.Format == "" {
		r.Format = DefaultFormat
	}
	if r.TimeOffset == 0 {
		r.TimeOffset = DefaultSeek
	}
	return r
}

// Validate reports programmer-level misuse of option values. It is the
// only error surface of the pipeline; file content and I/O problems
// degrade to placeholders instead.
func (r Request) Validate() error {
	if r.Width < 1 || r.Width > MaxDimension {
		return fmt.Errorf("invalid thumbnail width %d", r.Width)
	}
	if r.Height < 1 || r.Height > MaxDimension {
		return fmt.Errorf("invalid thumbnail height %d", r.Height)
	}
	if r.Quality < 1 || r.Quality > 100 {
		return fmt.Errorf("invalid thumbnail quality %d", r.Quality)
	}
	if r.Format != "jpeg" && r.Format != "png" {
		return fmt.Errorf("unsupported thumbnail format %q", r.Format)
	}
	if r.TimeOffset < 0 {
		return fmt.Errorf("negative video time offset %v", r.TimeOffset)
	}
	return nil
}

// Key returns the canonical cache key for a source path and request.
// All producers and invalidators must derive keys through this function;
// two requests with equal normalized options always map to the same key.
func Key(path string, r Request) string {
	r = r.Normalize()
	return fmt.Sprintf("%s_%dx%d_q%d_%s", path, r.Width, r.Height, r.Quality, r.Format)
}
