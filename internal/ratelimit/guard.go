package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/licenseboard/internal/config"
	"go.uber.org/zap"
)

const (
	keyLoginAttempts = "licenseboard:login:%s"
	keyImportLock    = "licenseboard:import:lock"
)

// Guard throttles login attempts per username and allows one bulk import at a time.
// A nil redis client disables both checks.
type Guard struct {
	bucket *TokenBucket
	locker *Locker
	log    *zap.Logger

	loginRate  float64
	loginBurst int
	importTTL  time.Duration
}

func NewGuard(client *redis.Client, cfg config.Config, log *zap.Logger) *Guard {
	g := &Guard{
		log:        log.Named("ratelimit"),
		loginRate:  cfg.RateLimit.LoginRatePerMinute / 60,
		loginBurst: cfg.RateLimit.LoginBurst,
		importTTL:  cfg.RateLimit.ImportLockTTL,
	}
	if client == nil {
		return g
	}
	g.bucket = NewTokenBucket(client)
	g.locker = NewLocker(client)
	return g
}

func (g *Guard) Enabled() bool {
	return g != nil && g.bucket != nil
}

// AllowLogin fails open when redis is unreachable so an outage never locks operators out.
func (g *Guard) AllowLogin(ctx context.Context, username string) (Result, error) {
	if !g.Enabled() || g.loginRate <= 0 || g.loginBurst <= 0 {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyLoginAttempts, strings.ToLower(strings.TrimSpace(username)))
	res, err := g.bucket.Allow(ctx, key, g.loginRate, g.loginBurst)
	if err != nil {
		g.log.Warn("login rate limit check failed", zap.Error(err))
		return Result{Allowed: true}, nil
	}
	return res, nil
}

// WithImportLock serializes bulk imports across instances.
func (g *Guard) WithImportLock(ctx context.Context, fn func() error) error {
	if !g.Enabled() || g.importTTL <= 0 {
		return fn()
	}
	return g.locker.WithLock(ctx, keyImportLock, g.importTTL, fn)
}
