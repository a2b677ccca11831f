package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-browser/internal/logging"
	"media-browser/internal/metrics"
)

// Config holds memory monitor configuration.
type Config struct {
	// LimitBytes is the soft memory limit (0 = use GOMEMLIMIT or no limit).
	LimitBytes int64

	// HighWaterMark is the fraction of the limit at which pressure clears (0.0-1.0).
	HighWaterMark float64

	// CriticalWaterMark is the fraction at which best-effort work pauses (0.0-1.0).
	CriticalWaterMark float64

	// CheckInterval is how often to sample memory usage.
	CheckInterval time.Duration
}

// DefaultConfig returns sensible defaults for memory monitoring.
func DefaultConfig() Config {
	return Config{
		LimitBytes:        0,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and reports memory pressure. Best-effort
// work (thumbnail preloading) consults it before dispatching jobs.
type Monitor struct {
	config   Config
	limit    int64
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	current  uint64
	isPaused bool
}

// NewMonitor creates a new memory monitor. If no explicit limit is
// configured, GOMEMLIMIT is used when set.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes

	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
			logging.Info("Memory monitor using GOMEMLIMIT: %d bytes (%.1f MB)",
				limit, float64(limit)/(1024*1024))
		}
	}

	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, pressure signals disabled")
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		stopChan: make(chan struct{}),
	}
}

// Start begins monitoring memory usage in the background.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}

	go m.monitorLoop()
}

// Stop stops the memory monitor. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

// IsPaused reports whether best-effort work should be skipped due to
// memory pressure.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// Current returns the most recently sampled heap allocation in bytes.
func (m *Monitor) Current() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkMemory()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) checkMemory() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = stats.Alloc

	if m.limit <= 0 {
		return
	}

	usage := float64(stats.Alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	if usage >= m.config.CriticalWaterMark {
		if !m.isPaused {
			logging.Warn("Memory critical (%.1f%% of limit), pausing best-effort work", usage*100)
			m.isPaused = true
			metrics.MemoryPaused.Set(1)
			go runtime.GC()
		}
	} else if usage < m.config.HighWaterMark {
		if m.isPaused {
			logging.Info("Memory recovered (%.1f%% of limit), resuming best-effort work", usage*100)
			m.isPaused = false
			metrics.MemoryPaused.Set(0)
		}
	}
}
