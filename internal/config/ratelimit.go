package config // package config loads rate limit settings from the environment

import (
	"fmt"  // error wrapping
	"time" // timestamps and timeouts

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig configures the Redis token bucket placed in front of the
// API.  Scanner devices hammer POST /v1/scans during doors-open, so the
// scan route gets its own, larger bucket (ScanCapacity).
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED"         default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY"        default:"60"`
	ScanCapacity   int           `envconfig:"RATE_LIMIT_SCAN_CAPACITY"   default:"600"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS"   default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL"             default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY"    default:"ip_user_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX"          default:"rl"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG"           default:"false"`
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and clamps the values
// into a usable range.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	var c RateLimitConfig
	if err := envconfig.Process("", &c); err != nil {
		return RateLimitConfig{}, fmt.Errorf("rate limit config: %w", err)
	}
	c.normalize()
	return c, nil
}

func (c *RateLimitConfig) normalize() {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.ScanCapacity < c.Capacity {
		c.ScanCapacity = c.Capacity
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	// keys must outlive a full refill cycle or the bucket resets early
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
}
