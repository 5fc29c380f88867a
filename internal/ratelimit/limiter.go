// Package ratelimit throttles requests per client key.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Limiter reports whether a request for key is within quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Config selects and sizes a limiter. Limit is the number of requests allowed
// per Window; a non-positive Limit disables limiting.
type Config struct {
	Limit         int
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	Prefix        string
}

// New returns the Redis fixed-window limiter when RedisAddr is set and an
// in-process limiter otherwise. A disabled config yields a limiter that
// allows everything.
func New(cfg Config) (Limiter, error) {
	if cfg.Limit <= 0 {
		return Unlimited{}, nil
	}
	if cfg.Window <= 0 {
		return nil, errors.New("rate limiter requires a positive window")
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		l, err := NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.Prefix, cfg.Limit, cfg.Window)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	l, err := NewLocalLimiter(cfg.Limit, cfg.Window)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Unlimited allows every request.
type Unlimited struct{}

// Allow always returns true.
func (Unlimited) Allow(context.Context, string) bool { return true }

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
