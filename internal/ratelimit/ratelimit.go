// Package ratelimit enforces the per-user AI generation quota. Each backend
// performs check-and-increment as one atomic server-side operation so
// concurrent requests cannot both pass the last free slot.
package ratelimit

import (
	"context"
	"time"

	"jiralite/api/internal/aicache"
)

// Decision is the outcome of one Consume call.
type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

// Err converts a rejection into the error surfaced to callers.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &aicache.RateLimitError{RetryAfter: d.RetryAfter}
}

// Limiter consumes one slot of the caller's window.
type Limiter interface {
	Consume(ctx context.Context, userID string) (Decision, error)
}

// Unlimited allows everything. Used when no backend is configured.
type Unlimited struct{}

func (Unlimited) Consume(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
