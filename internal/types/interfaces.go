package types

import "time"

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a Clock pinned to a single instant. Tests advance it by
// assigning a new value.
type FixedClock struct {
	T time.Time
}

// Now returns the pinned instant.
func (c *FixedClock) Now() time.Time { return c.T }

// SessionValues is the per-visitor key-value store the billing and access
// packages read and write. Lifetime is owned by the session layer.
type SessionValues interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// PlanEventRecorder receives plan lifecycle events for metrics.
type PlanEventRecorder interface {
	RecordPlanEvent(plan, event string)
}
