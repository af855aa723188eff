package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	apihttp "streamswarm/internal/api/http"
	"streamswarm/internal/app"
	"streamswarm/internal/manifest"
	"streamswarm/internal/metrics"
	"streamswarm/internal/segmenter/ffmpeg"
	"streamswarm/internal/telemetry"
	"streamswarm/internal/usecase"
	"streamswarm/internal/watcher"
)

const serviceName = "streamswarm"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("config load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, telemetry.Options{
		Endpoint:   cfg.OTelEndpoint,
		SampleRate: cfg.OTelSampleRate,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("apiPrefix", cfg.APIPrefix),
		slog.String("store", cfg.StoreBackend),
		slog.String("videosDir", cfg.VideosDir),
		slog.String("chunksDir", cfg.ChunksDir),
		slog.Int("chunkDuration", cfg.ChunkDuration),
		slog.Int("workers", cfg.ProcessWorkers),
		slog.Bool("watcher", cfg.WatcherEnabled),
		slog.Bool("redisGuard", cfg.RedisURL != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg app.Config, logger *slog.Logger) error {
	for _, dir := range []string{cfg.VideosDir, cfg.ChunksDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	store, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	guard, closeGuard, err := app.OpenGuard(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGuard()

	hub := apihttp.NewStatusHub(logger)
	builder := manifest.Builder{
		ChunkRoot:     cfg.ChunksDir,
		ChunkDuration: cfg.ChunkDuration,
		URLPrefix:     cfg.APIPrefix,
	}
	process := usecase.ProcessVideo{
		Repo:          store,
		Segmenter:     ffmpeg.New(cfg.FFMPEGPath, cfg.SegmentTimeout(), logger),
		Manifests:     builder,
		Notifier:      hub,
		VideosDir:     cfg.VideosDir,
		ChunksDir:     cfg.ChunksDir,
		ChunkDuration: cfg.ChunkDuration,
		APIPrefix:     cfg.APIPrefix,
		Logger:        logger,
		Now:           time.Now,
	}
	dispatcher := usecase.NewDispatcher(process, guard, usecase.DispatcherConfig{
		Workers:   cfg.ProcessWorkers,
		QueueSize: cfg.ProcessQueueSize,
		Logger:    logger,
	})

	uploadUC := usecase.UploadVideo{
		Repo:         store,
		Queue:        dispatcher,
		Notifier:     hub,
		VideosDir:    cfg.VideosDir,
		AllowedExts:  cfg.VideoExtensions,
		QueueTimeout: 5 * time.Second,
		Now:          time.Now,
		Logger:       logger,
	}
	handler := apihttp.NewServer(uploadUC,
		apihttp.WithLogger(logger),
		apihttp.WithStatusHub(hub),
		apihttp.WithAPIPrefix(cfg.APIPrefix),
		apihttp.WithGetVideo(usecase.GetVideo{Repo: store}),
		apihttp.WithListVideos(usecase.ListVideos{Repo: store}),
		apihttp.WithListChunks(usecase.ListChunks{Repo: store, Videos: store}),
		apihttp.WithGetManifest(usecase.GetManifest{Repo: store, Manifests: builder}),
		apihttp.WithOpenChunk(usecase.OpenChunk{Manifests: builder}),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithMaxUploadBytes(cfg.MaxUploadBytes),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	if cfg.WatcherEnabled {
		w := watcher.New(watcher.Config{
			Dir:        cfg.VideosDir,
			ChunksDir:  cfg.ChunksDir,
			Extensions: cfg.VideoExtensions,
			Interval:   cfg.PollInterval(),
			Notify:     cfg.WatcherNotify,
		}, usecase.IngestFile{Repo: store, Queue: dispatcher, Now: time.Now}, logger)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		resume := usecase.ResumeUploaded{Repo: store, Queue: dispatcher, Logger: logger}
		if _, err := resume.Execute(gctx); err != nil && gctx.Err() == nil {
			logger.Warn("resume uploaded videos failed", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("server started", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	return g.Wait()
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	handlerOpts := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
