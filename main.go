package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-browser/internal/config"
	"media-browser/internal/handlers"
	"media-browser/internal/logging"
	"media-browser/internal/memory"
	"media-browser/internal/middleware"
	"media-browser/internal/thumbnail"
	"media-browser/internal/workerpool"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	// Initialize libvips for fast image decoding
	if cfg.Thumbnails.VipsEnabled {
		if err := thumbnail.InitVips(); err != nil {
			logging.Warn("libvips unavailable, falling back to pure-Go decoding: %v", err)
		}
	}
	defer thumbnail.ShutdownVips()

	// Memory monitor gates best-effort preload work
	memConfig := memory.DefaultConfig()
	memConfig.LimitBytes = cfg.MemoryLimitBytes()
	memConfig.HighWaterMark = cfg.Memory.HighWaterMark
	memConfig.CriticalWaterMark = cfg.Memory.CriticalWaterMark
	monitor := memory.NewMonitor(memConfig)
	monitor.Start()
	defer monitor.Stop()

	// Thumbnail pipeline
	pool := workerpool.New(cfg.Thumbnails.Workers)
	generator := thumbnail.NewGenerator(thumbnail.GeneratorConfig{
		VideoTimeout: cfg.VideoTimeout(),
		UseVips:      cfg.Thumbnails.VipsEnabled,
	})
	cache := thumbnail.NewCache(cfg.Thumbnails.MaxEntries, cfg.CacheMaxMemoryBytes(), cfg.CacheTTL())
	manager := thumbnail.NewManager(cache, pool, generator, monitor, cfg.SweepInterval())

	h := handlers.New(manager, cfg)

	router := setupRouter(h)

	// Middleware chain: metrics innermost, then logging, then compression
	metricsHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(router)
	loggedHandler := middleware.Logger(middleware.DefaultLoggingConfig())(metricsHandler)
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(loggedHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go handleShutdown(srv, manager, shutdownDone)

	logging.Info("Serving thumbnails for %s on port %s (started in %v)",
		cfg.MediaDir, cfg.Port, time.Since(startTime).Round(time.Millisecond))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}

	<-shutdownDone
	logging.Info("Shutdown complete")
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health and metrics
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")

	// Thumbnail API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/thumbnail/batch", h.BatchThumbnails).Methods("POST")
	api.HandleFunc("/thumbnail/preload", h.PreloadThumbnails).Methods("POST")
	api.HandleFunc("/cache", h.InvalidateCache).Methods("DELETE")
	api.HandleFunc("/cache/clear", h.ClearCache).Methods("POST")
	api.HandleFunc("/cache/stats", h.CacheStats).Methods("GET")

	return r
}

func handleShutdown(srv *http.Server, manager *thumbnail.Manager, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logging.Info("Received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Let in-flight requests finish before draining the pipeline.
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	}

	manager.Dispose()
}
