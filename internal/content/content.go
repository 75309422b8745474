// Package content generates event and marketing copy.  The mock generator
// needs nothing; the HTTP generator forwards to an OpenAI compatible
// chat-completions endpoint and falls back to the mock when it fails.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kinds of content.
const (
	KindEventDescription = "event_description"
	KindNewsletter       = "newsletter"
	KindSocialPost       = "social_post"
)

// Sources reported in Result.Source.
const (
	SourceMock  = "mock"
	SourceAPI   = "api"
	SourceCache = "cache"
)

// ErrInvalidRequest is returned for an unknown kind or an empty topic.
var ErrInvalidRequest = errors.New("invalid content request")

// Request asks for one piece of content.
type Request struct {
	Kind  string `json:"kind"`
	Topic string `json:"topic"`
	Tone  string `json:"tone,omitempty"`
}

// Result is generated content.
type Result struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Generator produces content for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Validate normalizes req and checks it.
func (r *Request) Validate() error {
	r.Kind = strings.TrimSpace(strings.ToLower(r.Kind))
	r.Topic = strings.TrimSpace(r.Topic)
	r.Tone = strings.TrimSpace(strings.ToLower(r.Tone))
	switch r.Kind {
	case KindEventDescription, KindNewsletter, KindSocialPost:
	default:
		return fmt.Errorf("%w: kind must be one of %s, %s, %s", ErrInvalidRequest,
			KindEventDescription, KindNewsletter, KindSocialPost)
	}
	if r.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if len(r.Topic) > 500 {
		return fmt.Errorf("%w: topic is longer than 500 characters", ErrInvalidRequest)
	}
	if r.Tone == "" {
		r.Tone = "friendly"
	}
	return nil
}

// Cached memoizes another generator in Redis.  Mock results are not
// cached, so a recovered upstream is used as soon as it is back.
type Cached struct {
	Next   Generator
	Redis  *redis.Client
	TTL    time.Duration
	Logger *slog.Logger
}

func cacheKey(req Request) string {
	sum := sha256.Sum256([]byte(req.Kind + "\x00" + req.Tone + "\x00" + req.Topic))
	return "content:" + hex.EncodeToString(sum[:16])
}

func (c *Cached) Generate(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if c.Redis == nil {
		return c.Next.Generate(ctx, req)
	}
	key := cacheKey(req)
	if buf, err := c.Redis.Get(ctx, key).Bytes(); err == nil {
		var res Result
		if json.Unmarshal(buf, &res) == nil {
			res.Source = SourceCache
			return res, nil
		}
	}
	res, err := c.Next.Generate(ctx, req)
	if err != nil || res.Source == SourceMock {
		return res, err
	}
	if buf, err := json.Marshal(res); err == nil {
		if err := c.Redis.Set(ctx, key, buf, c.TTL).Err(); err != nil && c.Logger != nil {
			c.Logger.Debug("content cache set failed", "error", err)
		}
	}
	return res, nil
}
