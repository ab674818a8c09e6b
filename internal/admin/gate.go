package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"p2p-coin-desk-go/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "admin:"

// Gate answers "is this email an administrator" against the allow-list.
// Lookups may be cached in Redis for a short TTL; membership changes are
// picked up once the entry expires.
type Gate struct {
	directory store.AdminDirectory
	cache     *redis.Client
	ttl       time.Duration
}

type Option func(*Gate)

// WithCache enables the Redis membership cache. A nil client or a
// non-positive ttl leaves caching off.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(g *Gate) {
		if client != nil && ttl > 0 {
			g.cache = client
			g.ttl = ttl
		}
	}
}

func NewGate(directory store.AdminDirectory, opts ...Option) *Gate {
	g := &Gate{directory: directory}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (g *Gate) IsAdmin(ctx context.Context, email string) (bool, error) {
	email = normalize(email)
	if email == "" {
		return false, nil
	}

	if g.cache != nil {
		val, err := g.cache.Get(ctx, cacheKeyPrefix+email).Result()
		switch {
		case err == nil:
			return val == "1", nil
		case errors.Is(err, redis.Nil):
		default:
			zap.L().Debug("Admin cache read failed", zap.Error(err))
		}
	}

	ok, err := g.directory.HasAdmin(ctx, email)
	if err != nil {
		return false, fmt.Errorf("%w: admin lookup failed: %w", store.ErrUpstream, err)
	}

	if g.cache != nil {
		val := "0"
		if ok {
			val = "1"
		}
		if err := g.cache.Set(ctx, cacheKeyPrefix+email, val, g.ttl).Err(); err != nil {
			zap.L().Debug("Admin cache write failed", zap.Error(err))
		}
	}

	return ok, nil
}

// Authorize returns ErrUnauthorized unless email is on the allow-list.
func (g *Gate) Authorize(ctx context.Context, email string) error {
	ok, err := g.IsAdmin(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		zap.L().Warn("Rejected privileged operation", zap.String("email", email))
		return fmt.Errorf("%w: %s is not an administrator", store.ErrUnauthorized, email)
	}
	return nil
}

// Invalidate drops the cached membership of email, if any.
func (g *Gate) Invalidate(ctx context.Context, email string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Del(ctx, cacheKeyPrefix+normalize(email)).Err(); err != nil {
		zap.L().Debug("Admin cache invalidation failed", zap.Error(err))
	}
}
