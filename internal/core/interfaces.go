package core

import (
	"context"
	"time"
)

// RateLimitStore abstracts the backing store for rate limiting.
type RateLimitStore interface {
	// IncrementAndCheck consumes one request for key and reports whether it
	// fits within limit requests per window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	// Allowed indicates whether the request is within the rate limit.
	Allowed bool
	// Remaining is the number of requests still available right now.
	Remaining int
	// ResetAt is when the budget is full again, or, for a denied request,
	// when the next request will be admitted.
	ResetAt time.Time
}
