package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"streamswarm/internal/domain/ports"
	"streamswarm/internal/inflight"
	"streamswarm/internal/repository/memory"
	mongorepo "streamswarm/internal/repository/mongo"
	"streamswarm/internal/usecase"
)

// OpenStore connects the record store selected by STORE_BACKEND. The
// returned func releases it.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (usecase.ProcessRepository, func(), error) {
	if cfg.StoreBackend == "memory" {
		logger.Warn("using in-memory record store, records are lost on restart")
		return memory.NewRepository(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	repo := mongorepo.NewRepository(client, cfg.MongoDatabase)
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	closeFn := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}
	return repo, closeFn, nil
}

// OpenGuard returns the Redis in-flight guard when REDIS_URL is set and a
// process-local registry otherwise.
func OpenGuard(ctx context.Context, cfg Config, logger *slog.Logger) (ports.InFlightGuard, func(), error) {
	if cfg.RedisURL == "" {
		return inflight.NewRegistry(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("using redis in-flight guard", slog.String("addr", opts.Addr))

	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close error", slog.String("error", err.Error()))
		}
	}
	return inflight.NewRedisGuard(client, cfg.InFlightTTL()), closeFn, nil
}
