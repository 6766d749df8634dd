package port

import (
	"context"
	"time"
)

// RateLimitStore persists attempt timestamps per identifier for sliding-window limits.
// It backs both the HTTP rate limiter and the per-account forgot-password throttle.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
