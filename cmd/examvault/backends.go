package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/examvault/internal/artifact"
	"github.com/pavelanni/examvault/internal/config"
	"github.com/pavelanni/examvault/internal/notify"
	"github.com/pavelanni/examvault/internal/store"
	"github.com/pavelanni/examvault/internal/store/mongostore"
)

const artifactCachePrefix = "examvault:artifact:"

func openRepository(ctx context.Context, db config.DBConfig) (store.Repository, error) {
	switch db.Driver {
	case config.DriverMongo:
		s, err := mongostore.Open(ctx, db.DSN, db.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := store.Open(ctx, store.DialectPostgres, db.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := store.Open(ctx, store.DialectSQLite, db.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// openArtifactStore builds the configured backend, optionally behind a Redis
// read cache, and wraps it in an Adapter. The returned func releases it.
func openArtifactStore(ctx context.Context, cfg config.ArtifactConfig) (*artifact.Adapter, func(), error) {
	var (
		backend artifact.Backend
		err     error
	)
	switch cfg.Backend {
	case config.ArtifactGateway:
		backend, err = artifact.NewGatewayBackend(artifact.GatewayConfig{
			PinURL:     cfg.Gateway.PinURL,
			GatewayURL: cfg.Gateway.GatewayURL,
			JWT:        cfg.Gateway.JWT,
			Timeout:    cfg.Timeout,
		})
	case config.ArtifactMinio:
		backend, err = artifact.NewMinioBackend(ctx, artifact.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Region:    cfg.Minio.Region,
			UseSSL:    cfg.Minio.UseSSL,
		})
	default:
		slog.Warn("using in-memory artifact store; published exams are lost on restart")
		backend = artifact.NewMemoryBackend()
	}
	if err != nil {
		return nil, nil, err
	}

	closer := func() {}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		backend = artifact.NewCachedBackend(backend, artifact.NewRedisCache(client, artifactCachePrefix, cfg.CacheTTL))
		closer = func() { client.Close() }
		slog.Info("artifact cache enabled", "addr", opts.Addr, "ttl", cfg.CacheTTL)
	}

	adapter := artifact.NewAdapter(backend, artifact.Options{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryBase:  cfg.RetryBase,
	})
	return adapter, closer, nil
}

func openSender(cfg config.NotifyConfig) (notify.Sender, func(), error) {
	switch cfg.Backend {
	case config.NotifyAMQP:
		s, err := notify.NewAMQPSender(cfg.AMQPURL, cfg.Exchange)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("close amqp sender", "error", err)
			}
		}, nil
	default:
		return notify.LogSender{}, func() {}, nil
	}
}
