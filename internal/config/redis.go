package config

// Redis backs rate limiting, response caching, the occupancy cache and the
// per-badge scan lock.  Every consumer accepts a nil client and degrades to
// its local behaviour, so a failed connection at startup is not fatal.

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection parameters.  REDIS_HOST and REDIS_PORT
// take precedence over REDIS_ADDR when both are set.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB"`
	TLS      bool   `envconfig:"REDIS_TLS"`
}

// Address resolves the host:port to dial.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	return c.Addr
}

// NewRedisClient instantiates a Redis client from REDIS_* variables.  The
// returned client is nil if the configuration is invalid or the server
// does not answer a ping within two seconds.
func NewRedisClient(logger *slog.Logger) *redis.Client {
	var c RedisConfig
	if err := envconfig.Process("", &c); err != nil {
		logger.Warn(fmt.Sprintf("redis config: %s", err), "component", "redis")
		return nil
	}
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      c.Address(),
		Password:  c.Password,
		DB:        c.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn(
			"redis unavailable, caching, rate limiting and distributed locks disabled",
			"component", "redis",
			"addr", c.Address(),
			"error", err,
		)
		_ = client.Close()
		return nil
	}
	return client
}
