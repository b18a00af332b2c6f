package access

import (
	"net/url"
	"time"

	"seep/internal/billing"
	"seep/internal/types"
)

// Redirect targets.
const (
	PathBillingSelect = "/billing/select"
	PathSetup         = "/setup"
)

// Denial reasons.
const (
	ReasonSubscriptionRequired = "subscription_required"
	ReasonNotConfigured        = "not_configured"
)

// Permit is the result of a successful authorization. It carries the
// resolved configuration the protected operation should use.
type Permit struct {
	BotName         string
	ShopDomain      string
	StorefrontToken string
	Plan            string
	Expiry          *time.Time
}

// Redirect is a denial: the visitor should be sent to Target.
type Redirect struct {
	Target  string
	Reason  string
	Message string
}

// Location returns Target with Message attached as the "message" query
// parameter.
func (r *Redirect) Location() string {
	if r.Message == "" {
		return r.Target
	}
	return r.Target + "?" + url.Values{"message": {r.Message}}.Encode()
}

// Err converts the denial into an AppError for JSON callers.
func (r *Redirect) Err() *types.AppError {
	code := types.ErrCodeSubscriptionRequired
	if r.Reason == ReasonNotConfigured {
		code = types.ErrCodeSetupNotConfigured
	}
	return types.NewAppErrorWithDetails(code, r.Message, nil, map[string]any{
		"redirect": r.Target,
	})
}

// Evaluator is the part of billing.Service the guard needs.
type Evaluator interface {
	Evaluate(sess types.SessionValues) billing.AccessDecision
}

// Guard authorizes protected operations. It never mutates the session.
type Guard struct {
	billing  Evaluator
	defaults Defaults
}

// NewGuard creates a Guard.
func NewGuard(eval Evaluator, defaults Defaults) *Guard {
	return &Guard{billing: eval, defaults: defaults}
}

// Defaults returns the process-wide bot defaults.
func (g *Guard) Defaults() Defaults { return g.defaults }

// Authorize returns a Permit when the session has an active plan and a
// completed setup. Exactly one of the results is non-nil.
func (g *Guard) Authorize(sess types.SessionValues) (*Permit, *Redirect) {
	decision := g.billing.Evaluate(sess)
	if !decision.Active {
		return nil, billingRedirect()
	}

	settings := LoadBotSettings(sess)
	if !settings.Complete() {
		return nil, &Redirect{
			Target:  PathSetup,
			Reason:  ReasonNotConfigured,
			Message: "Please finish setting up your bot.",
		}
	}

	resolved := settings.Resolve(g.defaults)
	return &Permit{
		BotName:         resolved.BotName,
		ShopDomain:      resolved.ShopDomain,
		StorefrontToken: resolved.StorefrontToken,
		Plan:            decision.DisplayName,
		Expiry:          decision.Expiry,
	}, nil
}

// AllowSetupView reports whether the setup page may be shown. First-time
// setup is open without a plan while no storefront domain or token can be
// resolved. Otherwise an active plan is required.
func (g *Guard) AllowSetupView(sess types.SessionValues) (bool, *Redirect) {
	resolved := LoadBotSettings(sess).Resolve(g.defaults)
	if resolved.ShopDomain == "" || resolved.StorefrontToken == "" {
		return true, nil
	}
	return g.RequireBilling(sess)
}

// RequireBilling checks only the billing half of Authorize.
func (g *Guard) RequireBilling(sess types.SessionValues) (bool, *Redirect) {
	if g.billing.Evaluate(sess).Active {
		return true, nil
	}
	return false, billingRedirect()
}

func billingRedirect() *Redirect {
	return &Redirect{
		Target:  PathBillingSelect,
		Reason:  ReasonSubscriptionRequired,
		Message: "Please choose a plan to continue.",
	}
}
