package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acestream-enricher/internal/enricher"
	"acestream-enricher/internal/platform/config"
	"acestream-enricher/internal/platform/logger"
	"acestream-enricher/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	met := metrics.New()
	pub := enricher.NewPublisher()
	if err := met.Register(pub); err != nil {
		log.Error("register publisher", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	dir := enricher.NewHTTPDirectory(httpClient, cfg.DirectoryListURL, cfg.DirectoryStreamsURL, cfg.StreamsTimeout)
	cache := enricher.NewCache(dir, enricher.CacheConfig{
		RefreshInterval: cfg.RefreshInterval,
		MaxPages:        cfg.MaxPages,
		Concurrency:     cfg.Concurrency,
	}, log, met)
	source := enricher.NewHTTPSource(httpClient, cfg.UsageFeedURL, cfg.StatusURL)
	svc := enricher.NewService(source, cache, pub, log, met)
	h := enricher.NewHandler(svc, cache, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler())
	r.Get("/healthz", h.Healthz)
	r.Get("/status", h.Status)
	r.Get("/resolve/{stream_id}", h.Resolve)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("exporter starting",
		"port", cfg.Port,
		"usage_feed_url", cfg.UsageFeedURL,
		"status_url", cfg.StatusURL,
		"directory_list_url", cfg.DirectoryListURL,
		"scrape_interval", cfg.ScrapeInterval.String(),
		"refresh_interval", cfg.RefreshInterval.String(),
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := enricher.NewScheduler(svc, cfg.ScrapeInterval, log)
	if err := sched.Start(ctx); err != nil {
		log.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	log.Info("shutdown signal received, draining connections")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("exporter stopped")
}
