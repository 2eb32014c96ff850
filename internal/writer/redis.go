package writer

import (
	"NetSeismic/internal/config"
	"NetSeismic/internal/model"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

func init() {
	Register("redis", func(def config.WriterDef, logger *slog.Logger) (model.Writer, error) {
		return NewRedisWriter(context.Background(), def.Redis, logger)
	})
}

// RedisWriter keeps recent reports in Redis: the JSON report under
// <prefix>:session:<id> and an index sorted by start time under <prefix>:sessions.
type RedisWriter struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisWriter connects to Redis and verifies the connection.
func NewRedisWriter(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisWriter, error) {
	redisOptions := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSEnabled {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(redisOptions)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	ttl, err := time.ParseDuration(orDefault(cfg.TTL, "24h"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("invalid redis ttl: %w", err)
	}

	logger.Info("Redis client connected successfully",
		slog.String("address", redisOptions.Addr),
		slog.Int("db", cfg.DB),
		slog.Bool("tls", cfg.TLSEnabled))

	return &RedisWriter{
		client: client,
		prefix: orDefault(cfg.KeyPrefix, "seismic"),
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (w *RedisWriter) Name() string { return "redis" }

func (w *RedisWriter) Close() error { return w.client.Close() }

func (w *RedisWriter) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", w.prefix, id)
}

func (w *RedisWriter) indexKey() string {
	return w.prefix + ":sessions"
}

func (w *RedisWriter) Write(ctx context.Context, r *model.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	pipe := w.client.TxPipeline()
	pipe.Set(ctx, w.sessionKey(r.SessionID), payload, w.ttl)
	pipe.ZAdd(ctx, w.indexKey(), redis.Z{
		Score:  float64(r.Series.StartTime.UnixMilli()),
		Member: r.SessionID,
	})
	// Index entries older than the report TTL point at expired keys.
	cutoff := time.Now().Add(-w.ttl).UnixMilli()
	pipe.ZRemRangeByScore(ctx, w.indexKey(), "-inf", fmt.Sprintf("(%d", cutoff))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store report in redis: %w", err)
	}

	w.logger.Debug("stored report in Redis", slog.String("session_id", r.SessionID))
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
