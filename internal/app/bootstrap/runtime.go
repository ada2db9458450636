package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/carebook/internal/booking"
	appconfig "github.com/wolfman30/carebook/internal/config"
	"github.com/wolfman30/carebook/internal/support"
	"github.com/wolfman30/carebook/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildCaseStore picks the Redis case store, or an in-process one when Redis
// is unavailable. In-process cases do not survive a restart.
func BuildCaseStore(redisClient *redis.Client, logger *logging.Logger) support.CaseStore {
	if redisClient == nil {
		if logger != nil {
			logger.Warn("support cases kept in memory; they are lost on restart")
		}
		return support.NewMemoryCaseStore()
	}
	return support.NewRedisCaseStore(redisClient)
}

// BuildSubmissionGuard picks the Redis per-patient lock, or an in-process one
// that only protects a single replica.
func BuildSubmissionGuard(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) booking.SubmissionGuard {
	if redisClient == nil {
		return booking.NewMemorySubmissionGuard()
	}
	return booking.NewRedisSubmissionGuard(redisClient, cfg.SubmitLockTTL, logger)
}
