package billing

import (
	"strconv"
	"time"

	"seep/internal/types"
)

// Session keys holding the subscription.
const (
	KeyPlan     = "subscription_plan"
	KeyStarted  = "subscription_start"
	KeyCanceled = "subscription_canceled"
)

// Subscription is the per-session plan state. PlanID is empty when no plan is
// selected, and StartedAt is zero exactly when PlanID is empty.
type Subscription struct {
	PlanID    PlanID
	StartedAt time.Time
	Canceled  bool
}

// IsZero reports whether no plan is selected.
func (s Subscription) IsZero() bool { return s.PlanID == "" }

// LoadSubscription reads the subscription from sess. A plan without a valid
// start time (or the reverse) is treated as no plan.
func LoadSubscription(sess types.SessionValues) Subscription {
	var sub Subscription
	if v, ok := sess.Get(KeyCanceled); ok {
		sub.Canceled, _ = strconv.ParseBool(v)
	}

	planID, hasPlan := sess.Get(KeyPlan)
	raw, hasStart := sess.Get(KeyStarted)
	if !hasPlan || !hasStart || planID == "" {
		return sub
	}
	started, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return sub
	}

	sub.PlanID = PlanID(planID)
	sub.StartedAt = started.UTC()
	return sub
}

// SaveSubscription writes sub to sess. A zero subscription removes the plan and
// start keys.
func SaveSubscription(sess types.SessionValues, sub Subscription) {
	if sub.IsZero() || sub.StartedAt.IsZero() {
		sess.Delete(KeyPlan)
		sess.Delete(KeyStarted)
	} else {
		sess.Set(KeyPlan, string(sub.PlanID))
		sess.Set(KeyStarted, sub.StartedAt.UTC().Format(time.RFC3339Nano))
	}
	sess.Set(KeyCanceled, strconv.FormatBool(sub.Canceled))
}
