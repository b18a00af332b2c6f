// Package billing holds the mock subscription model: the plan catalog, the
// per-session subscription state, and the rules that decide whether a
// subscription currently grants access.
package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PlanID identifies a plan in the catalog.
type PlanID string

const (
	PlanMonthly    PlanID = "monthly"
	PlanThreeMonth PlanID = "3m"
	PlanSixMonth   PlanID = "6m"
	PlanOneYear    PlanID = "12m"
)

// Plan is an immutable plan definition.
type Plan struct {
	ID           PlanID              `json:"id"`
	DisplayName  string              `json:"display_name"`
	MonthlyPrice decimal.Decimal     `json:"monthly_price"`
	IntroPrice   decimal.NullDecimal `json:"intro_price"`

	// TrialDays is 0 when the plan has no trial.
	TrialDays int `json:"trial_days"`

	// CommitmentMonths is 0 when the plan can be canceled at any time.
	CommitmentMonths int `json:"commitment_months"`
}

// HasTrial reports whether the plan opens with a trial window.
func (p Plan) HasTrial() bool { return p.TrialDays > 0 }

// HasCommitment reports whether the plan has a minimum term.
func (p Plan) HasCommitment() bool { return p.CommitmentMonths > 0 }

// Catalog is the read-only table of offerable plans.
type Catalog interface {
	// Lookup returns the plan for id and whether it exists.
	Lookup(id PlanID) (Plan, bool)
	// Plans returns every plan in display order.
	Plans() []Plan
}

type staticCatalog struct {
	plans map[PlanID]Plan
	order []PlanID
}

// defaultPlans is the catalog offered on the billing page.
//
//	| id      | trial | intro  | monthly | commitment |
//	|---------|-------|--------|---------|------------|
//	| monthly | 7d    | 14.99  | 19.99   | none       |
//	| 3m      | -     | -      | 17.99   | 3 months   |
//	| 6m      | -     | -      | 15.99   | 6 months   |
//	| 12m     | -     | -      | 13.33   | 12 months  |
var defaultPlans = []Plan{
	{
		ID:           PlanMonthly,
		DisplayName:  "Free Trial + Monthly",
		MonthlyPrice: decimal.RequireFromString("19.99"),
		IntroPrice:   decimal.NewNullDecimal(decimal.RequireFromString("14.99")),
		TrialDays:    7,
	},
	{
		ID:               PlanThreeMonth,
		DisplayName:      "3-Month Commitment",
		MonthlyPrice:     decimal.RequireFromString("17.99"),
		CommitmentMonths: 3,
	},
	{
		ID:               PlanSixMonth,
		DisplayName:      "6-Month Commitment",
		MonthlyPrice:     decimal.RequireFromString("15.99"),
		CommitmentMonths: 6,
	},
	{
		ID:               PlanOneYear,
		DisplayName:      "1-Year Commitment",
		MonthlyPrice:     decimal.RequireFromString("13.33"),
		CommitmentMonths: 12,
	},
}

// NewStaticCatalog returns the default catalog.
func NewStaticCatalog() Catalog {
	return NewCatalog(defaultPlans...)
}

// NewCatalog builds a catalog from the given plans. Later duplicates replace
// earlier ones but keep the first position.
func NewCatalog(plans ...Plan) Catalog {
	c := &staticCatalog{plans: make(map[PlanID]Plan, len(plans))}
	for _, p := range plans {
		if _, seen := c.plans[p.ID]; !seen {
			c.order = append(c.order, p.ID)
		}
		c.plans[p.ID] = p
	}
	return c
}

func (c *staticCatalog) Lookup(id PlanID) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

func (c *staticCatalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

// IDs returns the catalog's plan ids sorted lexically.
func IDs(c Catalog) []string {
	plans := c.Plans()
	ids := make([]string, len(plans))
	for i, p := range plans {
		ids[i] = string(p.ID)
	}
	sort.Strings(ids)
	return ids
}
