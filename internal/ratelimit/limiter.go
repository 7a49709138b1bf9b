package ratelimit

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/tapkeeper/tapkeeper/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	balanceRate  = 5.0
	balanceBurst = 10
)

// Limiter throttles balance lookups per caller. It is disabled when no
// redis address is configured.
type Limiter struct {
	bucket *TokenBucket
	log    *zap.Logger
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewLimiter(p Params) *Limiter {
	if p.Config.RedisAddr == "" {
		return &Limiter{log: p.Log.Named("ratelimit")}
	}
	client := redis.NewClient(&redis.Options{Addr: p.Config.RedisAddr})
	return &Limiter{
		bucket: NewTokenBucket(client),
		log:    p.Log.Named("ratelimit"),
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowBalance reports whether the caller may perform another balance lookup.
// Redis failures allow the request through; throttling is advisory here.
func (l *Limiter) AllowBalance(ctx context.Context, callerKey string) bool {
	if !l.Enabled() {
		return true
	}
	key := fmt.Sprintf("ratelimit:balance:%s", callerKey)
	res, err := l.bucket.Allow(ctx, key, balanceRate, balanceBurst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.Error(err))
		return true
	}
	return res.Allowed
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewLimiter),
)
