package ratelimit

import (
	"context"
	"time"
)

// QuotaStore is a relational backend that consumes a slot in one statement.
// ok is false when the caller is already at the ceiling; windowStart is the
// start of the current window either way.
type QuotaStore interface {
	ConsumeAIQuota(ctx context.Context, userID string, limit int, window time.Duration, now time.Time) (count int, windowStart time.Time, ok bool, err error)
}

type QuotaLimiter struct {
	store  QuotaStore
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewQuotaLimiter(store QuotaStore, limit int, window time.Duration) *QuotaLimiter {
	return &QuotaLimiter{store: store, limit: limit, window: window, now: time.Now}
}

func (l *QuotaLimiter) Consume(ctx context.Context, userID string) (Decision, error) {
	now := l.now()
	count, start, ok, err := l.store.ConsumeAIQuota(ctx, userID, l.limit, l.window, now)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Allowed: ok, Count: count, Limit: l.limit}
	if !ok {
		d.RetryAfter = start.Add(l.window).Sub(now)
	}
	return d, nil
}
