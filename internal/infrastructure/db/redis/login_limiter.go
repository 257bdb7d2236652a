package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bestheroz/account-service/internal/core/domain"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = 15 * time.Minute
)

// LoginLimiter counts failed logins per kind and login id.
// Key format: login:fail:<kind>:<login_id>
//
// The counter expires cooldown after the first failure of a streak, so a
// throttled login id unlocks on its own.
type LoginLimiter struct {
	client      *redis.Client
	maxAttempts int64
	cooldown    time.Duration
}

// NewLoginLimiter creates a limiter. Non-positive arguments fall back to the
// defaults.
func NewLoginLimiter(client *redis.Client, maxAttempts int, cooldown time.Duration) *LoginLimiter {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &LoginLimiter{client: client, maxAttempts: int64(maxAttempts), cooldown: cooldown}
}

func (l *LoginLimiter) Check(ctx context.Context, kind domain.Kind, loginID string) error {
	count, err := l.client.Get(ctx, l.key(kind, loginID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("login limiter check: %w", err)
	}
	if count >= l.maxAttempts {
		return domain.ErrTooManyLoginAttempts
	}
	return nil
}

// RecordFailure counts a failed login. The first failure opens the cooldown
// window; later ones do not extend it.
func (l *LoginLimiter) RecordFailure(ctx context.Context, kind domain.Kind, loginID string) error {
	key := l.key(kind, loginID)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.cooldown)
		pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("login limiter record: %w", err)
	}
	return nil
}

func (l *LoginLimiter) Reset(ctx context.Context, kind domain.Kind, loginID string) error {
	if err := l.client.Del(ctx, l.key(kind, loginID)).Err(); err != nil {
		return fmt.Errorf("login limiter reset: %w", err)
	}
	return nil
}

func (l *LoginLimiter) key(kind domain.Kind, loginID string) string {
	return fmt.Sprintf("login:fail:%s:%s", kind, loginID)
}
