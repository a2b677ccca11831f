package handlers

import (
	"time"

	"media-browser/internal/config"
	"media-browser/internal/thumbnail"
)

// Version is the application version, overridable at build time with
// -ldflags "-X media-browser/internal/handlers.Version=...".
var Version = "dev"

type Handlers struct {
	manager   *thumbnail.Manager
	mediaDir  string
	defaults  thumbnail.Request
	startTime time.Time
}

func New(manager *thumbnail.Manager, cfg *config.Config) *Handlers {
	return &Handlers{
		manager:  manager,
		mediaDir: cfg.MediaDir,
		defaults: thumbnail.Request{
			Width:      cfg.Thumbnails.DefaultWidth,
			Height:     cfg.Thumbnails.DefaultHeight,
			Quality:    cfg.Thumbnails.DefaultQuality,
			Format:     cfg.Thumbnails.DefaultFormat,
			TimeOffset: cfg.VideoSeek(),
		},
		startTime: time.Now(),
	}
}
