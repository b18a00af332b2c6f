package billing

import "time"

const (
	day = 24 * time.Hour

	// introWindow follows the trial on trial plans.
	introWindow = 30 * day

	// commitmentMonthDays approximates a month for the commitment expiry
	// display. Eligibility uses calendar months instead (see MonthsElapsed).
	commitmentMonthDays = 30
)

// AccessDecision is the outcome of evaluating a subscription at an instant.
type AccessDecision struct {
	Active      bool       `json:"active"`
	DisplayName string     `json:"display_name,omitempty"`
	Expiry      *time.Time `json:"expiry"`
}

// MonthsElapsed counts calendar month boundaries crossed between start and
// now. Day of month is ignored: Jan 31 to Feb 1 is one month.
func MonthsElapsed(start, now time.Time) int {
	start, now = start.UTC(), now.UTC()
	return (now.Year()*12 + int(now.Month())) - (start.Year()*12 + int(start.Month()))
}

// Evaluate decides whether sub grants access at now.
func Evaluate(sub Subscription, catalog Catalog, now time.Time) AccessDecision {
	if sub.IsZero() || sub.Canceled {
		return AccessDecision{}
	}
	plan, ok := catalog.Lookup(sub.PlanID)
	if !ok {
		return AccessDecision{}
	}

	switch {
	case plan.HasCommitment():
		if MonthsElapsed(sub.StartedAt, now) >= plan.CommitmentMonths {
			// Fixed term is over; the visitor has to pick a plan again.
			return AccessDecision{DisplayName: plan.DisplayName}
		}
		expiry := sub.StartedAt.Add(time.Duration(commitmentMonthDays*plan.CommitmentMonths) * day)
		return active(plan, &expiry)

	case plan.HasTrial():
		trialEnd := sub.StartedAt.Add(time.Duration(plan.TrialDays) * day)
		if now.Before(trialEnd) {
			return active(plan, &trialEnd)
		}
		introEnd := trialEnd.Add(introWindow)
		if now.Before(introEnd) {
			return active(plan, &introEnd)
		}
		// Auto-renews after the intro window; only cancel ends it.
		return active(plan, nil)

	default:
		return active(plan, nil)
	}
}

func active(plan Plan, expiry *time.Time) AccessDecision {
	return AccessDecision{Active: true, DisplayName: plan.DisplayName, Expiry: expiry}
}
