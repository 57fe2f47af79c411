// Package ratelimit implements the admission gate (spec §4.C1): a per-user
// daily quota composed serially with a global sliding window, both backed
// by atomic Redis counters. Grounded on the teacher's
// repository/redis_repository Redis wrapper and internal/budget.Monitor's
// mutex-guarded-counter/threshold style.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
	Limit     int
}

// Limiter composes the per-user daily quota and the global sliding window.
type Limiter struct {
	client *redis.Client
	logger *slog.Logger

	DailyLimit   int
	GlobalMax    int
	GlobalWindow time.Duration
	GlobalRetries int
	AdminUsers   map[string]struct{}
}

// New builds a Limiter. adminUsers is the configured allow-list that
// bypasses the daily quota (spec §4.C1).
func New(client *redis.Client, logger *slog.Logger, dailyLimit, globalMax int, globalWindow time.Duration, globalRetries int, adminUsers []string) *Limiter {
	admins := make(map[string]struct{}, len(adminUsers))
	for _, u := range adminUsers {
		admins[u] = struct{}{}
	}
	return &Limiter{
		client: client, logger: logger,
		DailyLimit: dailyLimit, GlobalMax: globalMax, GlobalWindow: globalWindow,
		GlobalRetries: globalRetries, AdminUsers: admins,
	}
}

// Admit runs both limiters serially (daily quota first, global window
// second) and returns the first deny it finds. Fail-open: if Redis is
// unreachable, admission returns allowed=true and no counters are touched
// (spec §4.C1, logged).
func (l *Limiter) Admit(ctx context.Context, userID string) (Decision, error) {
	if _, isAdmin := l.AdminUsers[userID]; isAdmin {
		return Decision{Allowed: true, Remaining: l.DailyLimit}, nil
	}

	decision, err := l.admitDaily(ctx, userID)
	if err != nil {
		l.logger.Warn("daily quota check failed, failing open", "user", userID, "error", err)
		return Decision{Allowed: true}, nil
	}
	if !decision.Allowed {
		return decision, nil
	}

	return l.admitGlobal(ctx)
}

func endOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, now.Location())
}

// admitDaily peeks the stored count before touching it: a request already
// at quota is denied without ever incrementing the counter (spec §4.C1
// "increments atomically on acceptance", §8 "Admission idempotence on
// deny: a 429 leaves counters unchanged"). The increment only happens on
// the path that can actually be admitted; a concurrent admit that wins
// the race past the limit undoes its own increment before denying.
func (l *Limiter) admitDaily(ctx context.Context, userID string) (Decision, error) {
	now := time.Now()
	key := fmt.Sprintf("ratelimit:daily:%s:%s", userID, now.Format("2006-01-02"))
	reset := endOfDay(now)

	current, err := l.client.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return Decision{}, err
	}
	if current >= l.DailyLimit {
		return Decision{Allowed: false, Remaining: 0, ResetTime: reset, Limit: l.DailyLimit}, nil
	}

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, err
	}
	if count == 1 {
		if err := l.client.ExpireAt(ctx, key, reset).Err(); err != nil {
			l.logger.Warn("failed to set daily quota expiry", "key", key, "error", err)
		}
	}
	if int(count) > l.DailyLimit {
		if err := l.client.Decr(ctx, key).Err(); err != nil {
			l.logger.Warn("failed to undo daily quota increment on deny", "key", key, "error", err)
		}
		return Decision{Allowed: false, Remaining: 0, ResetTime: reset, Limit: l.DailyLimit}, nil
	}
	return Decision{Allowed: true, Remaining: l.DailyLimit - int(count), ResetTime: reset, Limit: l.DailyLimit}, nil
}

// admitGlobal implements the sliding window by bucketing on
// floor(now/window) (spec §4.C1) and retrying up to GlobalRetries times
// with a bounded wait before giving up.
func (l *Limiter) admitGlobal(ctx context.Context) (Decision, error) {
	for attempt := 0; attempt <= l.GlobalRetries; attempt++ {
		now := time.Now()
		bucket := now.UnixMilli() / l.GlobalWindow.Milliseconds()
		key := fmt.Sprintf("ratelimit:global:%d", bucket)
		reset := time.UnixMilli((bucket + 1) * l.GlobalWindow.Milliseconds())

		current, err := l.client.Get(ctx, key).Int()
		if err != nil && err != redis.Nil {
			l.logger.Warn("global rate limit check failed, failing open", "error", err)
			return Decision{Allowed: true}, nil
		}

		if current < l.GlobalMax {
			count, err := l.client.Incr(ctx, key).Result()
			if err != nil {
				l.logger.Warn("global rate limit check failed, failing open", "error", err)
				return Decision{Allowed: true}, nil
			}
			if count == 1 {
				l.client.Expire(ctx, key, l.GlobalWindow)
			}
			if int(count) <= l.GlobalMax {
				return Decision{Allowed: true, Remaining: l.GlobalMax - int(count), ResetTime: reset, Limit: l.GlobalMax}, nil
			}
			// Lost a race against a concurrent admit; undo so this denied
			// attempt never consumed a slot (spec §8 admission idempotence).
			if err := l.client.Decr(ctx, key).Err(); err != nil {
				l.logger.Warn("failed to undo global rate increment on deny", "key", key, "error", err)
			}
		}

		if attempt == l.GlobalRetries {
			return Decision{Allowed: false, Remaining: 0, ResetTime: reset, Limit: l.GlobalMax}, nil
		}

		wait := time.Until(reset)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return Decision{Allowed: true}, nil
		}
	}
	return Decision{Allowed: true}, nil
}
