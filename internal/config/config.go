package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"media-browser/internal/logging"
)

// Config holds all runtime configuration, populated from the environment.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	MediaDir string `envconfig:"MEDIA_DIR" default:"/media"`

	Thumbnails struct {
		DefaultWidth   int    `envconfig:"THUMBNAIL_WIDTH" default:"256"`
		DefaultHeight  int    `envconfig:"THUMBNAIL_HEIGHT" default:"256"`
		DefaultQuality int    `envconfig:"THUMBNAIL_QUALITY" default:"80"`
		DefaultFormat  string `envconfig:"THUMBNAIL_FORMAT" default:"jpeg"`

		MaxEntries       int `envconfig:"THUMBNAIL_CACHE_MAX_ENTRIES" default:"2000"`
		MaxMemoryMB      int `envconfig:"THUMBNAIL_CACHE_MAX_MEMORY_MB" default:"200"`
		TTLHours         int `envconfig:"THUMBNAIL_CACHE_TTL_HOURS" default:"24"`
		SweepIntervalMin int `envconfig:"THUMBNAIL_CACHE_SWEEP_INTERVAL_MINUTES" default:"60"`

		Workers             int  `envconfig:"THUMBNAIL_WORKERS" default:"0"` // 0 = auto
		VideoTimeoutSeconds int  `envconfig:"THUMBNAIL_VIDEO_TIMEOUT_SECONDS" default:"10"`
		VideoSeekSeconds    int  `envconfig:"THUMBNAIL_VIDEO_SEEK_SECONDS" default:"1"`
		VipsEnabled         bool `envconfig:"THUMBNAIL_VIPS_ENABLED" default:"true"`
	}

	Memory struct {
		LimitMB           int     `envconfig:"MEMORY_LIMIT_MB" default:"0"` // 0 = use GOMEMLIMIT
		HighWaterMark     float64 `envconfig:"MEMORY_HIGH_WATER_MARK" default:"0.7"`
		CriticalWaterMark float64 `envconfig:"MEMORY_CRITICAL_WATER_MARK" default:"0.85"`
	}
}

// Load reads configuration from a .env file (if present) and the
// environment, then validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Debug("No .env file loaded: %v", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	t := &c.Thumbnails
	if t.DefaultWidth <= 0 || t.DefaultHeight <= 0 {
		return fmt.Errorf("invalid thumbnail dimensions %dx%d", t.DefaultWidth, t.DefaultHeight)
	}
	if t.DefaultQuality < 1 || t.DefaultQuality > 100 {
		return fmt.Errorf("invalid thumbnail quality %d (must be 1-100)", t.DefaultQuality)
	}
	if t.MaxEntries <= 0 {
		return fmt.Errorf("invalid cache max entries %d", t.MaxEntries)
	}
	if t.MaxMemoryMB <= 0 {
		return fmt.Errorf("invalid cache max memory %d MB", t.MaxMemoryMB)
	}
	if c.Memory.HighWaterMark <= 0 || c.Memory.HighWaterMark >= c.Memory.CriticalWaterMark {
		return fmt.Errorf("invalid memory water marks: high %.2f, critical %.2f",
			c.Memory.HighWaterMark, c.Memory.CriticalWaterMark)
	}
	return nil
}

// CacheMaxMemoryBytes returns the configured cache memory bound in bytes.
func (c *Config) CacheMaxMemoryBytes() int64 {
	return int64(c.Thumbnails.MaxMemoryMB) * 1024 * 1024
}

// CacheTTL returns the configured cache entry TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Thumbnails.TTLHours) * time.Hour
}

// SweepInterval returns how often the TTL sweep runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Thumbnails.SweepIntervalMin) * time.Minute
}

// VideoTimeout returns the hard per-job timeout for video frame extraction.
func (c *Config) VideoTimeout() time.Duration {
	return time.Duration(c.Thumbnails.VideoTimeoutSeconds) * time.Second
}

// VideoSeek returns the default frame seek offset for video thumbnails.
func (c *Config) VideoSeek() time.Duration {
	return time.Duration(c.Thumbnails.VideoSeekSeconds) * time.Second
}

// MemoryLimitBytes returns the configured soft memory limit in bytes.
func (c *Config) MemoryLimitBytes() int64 {
	return int64(c.Memory.LimitMB) * 1024 * 1024
}
