// Package filesystem provides filesystem operations with retry logic for
// network filesystems. Media libraries frequently live on NFS mounts where
// a re-exported directory can briefly return stale file handles.
package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"media-browser/internal/logging"
	"media-browser/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isStaleHandleError checks if an error is an NFS stale file handle error.
func isStaleHandleError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// Stat performs os.Stat with retry logic for NFS stale file handle errors.
// Non-stale errors (including os.ErrNotExist) are returned immediately.
func Stat(path string, config RetryConfig) (os.FileInfo, error) {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		info, err := os.Stat(path)
		if err == nil {
			if attempt > 0 {
				logging.Info("Stat succeeded on retry %d for %s", attempt, path)
				metrics.FilesystemRetrySuccess.WithLabelValues("stat").Inc()
			}
			return info, nil
		}

		lastErr = err

		if !isStaleHandleError(err) {
			return nil, err
		}

		metrics.FilesystemStaleErrors.WithLabelValues("stat").Inc()

		if attempt < config.MaxRetries {
			logging.Debug("Stat stale file handle for %s, retrying in %v (attempt %d/%d)",
				path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("Stat failed after %d retries for %s: %v", config.MaxRetries, path, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues("stat").Inc()
	return nil, lastErr
}

// Open performs os.Open with retry logic for NFS stale file handle errors.
func Open(path string, config RetryConfig) (*os.File, error) {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		file, err := os.Open(path)
		if err == nil {
			if attempt > 0 {
				logging.Info("Open succeeded on retry %d for %s", attempt, path)
				metrics.FilesystemRetrySuccess.WithLabelValues("open").Inc()
			}
			return file, nil
		}

		lastErr = err

		if !isStaleHandleError(err) {
			return nil, err
		}

		metrics.FilesystemStaleErrors.WithLabelValues("open").Inc()

		if attempt < config.MaxRetries {
			logging.Debug("Open stale file handle for %s, retrying in %v (attempt %d/%d)",
				path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("Open failed after %d retries for %s: %v", config.MaxRetries, path, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues("open").Inc()
	return nil, lastErr
}
