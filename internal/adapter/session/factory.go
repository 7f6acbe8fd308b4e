package session

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bookrag/config"
	"bookrag/internal/port"
)

// New builds the session store selected by cfg. The Redis backend is pinged
// so a bad address fails at start-up rather than on the first query.
func New(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (port.SessionStore, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(cfg.Timeout), nil
	case "redis":
		var password string
		if cfg.Redis.PasswordEnv != "" {
			password = os.Getenv(cfg.Redis.PasswordEnv)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("using redis session store", zap.String("addr", cfg.Redis.Addr))
		return NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}
