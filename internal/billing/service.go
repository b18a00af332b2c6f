package billing

import (
	"log/slog"
	"time"

	"seep/internal/types"
)

// Plan lifecycle errors. All are user-facing and never logged as failures.
var (
	ErrInvalidPlan = types.NewAppError(
		types.ErrCodeValidationInvalidPlan, "Invalid plan.", nil)
	ErrCommitmentNotElapsed = types.NewAppError(
		types.ErrCodeConflictCommitment, "This plan cannot be canceled until the commitment period ends.", nil)
	ErrNothingActive = types.NewAppError(
		types.ErrCodeNotFoundSubscription, "There is no active plan to cancel.", nil)
)

// Plan event names reported to the PlanEventRecorder.
const (
	EventStarted  = "started"
	EventCanceled = "canceled"
	EventRejected = "cancel_rejected"
)

// StatusDisplay is the account state shown on the billing page.
type StatusDisplay struct {
	PlanID      PlanID     `json:"plan_id,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Active      bool       `json:"active"`
	Expiry      *time.Time `json:"expiry"`
}

// Service applies plan lifecycle operations to a session.
type Service struct {
	catalog Catalog
	clock   types.Clock
	events  types.PlanEventRecorder
	logger  *slog.Logger
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Catalog Catalog
	Clock   types.Clock
	Events  types.PlanEventRecorder
	Logger  *slog.Logger
}

// NewService creates a Service. Nil Catalog, Clock and Logger fall back to
// the static catalog, RealClock and slog.Default. Events may be nil.
func NewService(cfg ServiceConfig) *Service {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = NewStaticCatalog()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog: catalog,
		clock:   clock,
		events:  cfg.Events,
		logger:  logger,
	}
}

// Catalog returns the plan catalog the service evaluates against.
func (s *Service) Catalog() Catalog { return s.catalog }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// Evaluate decides whether the session's subscription grants access now.
func (s *Service) Evaluate(sess types.SessionValues) AccessDecision {
	return Evaluate(LoadSubscription(sess), s.catalog, s.clock.Now())
}

// StartPlan replaces the session's subscription with planID starting now.
// Unknown plans return ErrInvalidPlan, listing the valid ids in its details,
// and leave the session untouched.
func (s *Service) StartPlan(sess types.SessionValues, planID PlanID) error {
	plan, ok := s.catalog.Lookup(planID)
	if !ok {
		return ErrInvalidPlan.WithDetails(map[string]any{
			"available_plans": IDs(s.catalog),
		})
	}

	now := s.clock.Now()
	SaveSubscription(sess, Subscription{PlanID: plan.ID, StartedAt: now})

	s.logger.Info("plan started", "plan", plan.ID, "started_at", now)
	s.record(plan.ID, EventStarted)
	return nil
}

// CancelPlan cancels the session's active plan. Commitment plans can only be
// canceled once their term has elapsed.
func (s *Service) CancelPlan(sess types.SessionValues) error {
	sub := LoadSubscription(sess)
	if sub.IsZero() || sub.Canceled {
		return ErrNothingActive
	}

	now := s.clock.Now()
	if plan, ok := s.catalog.Lookup(sub.PlanID); ok && plan.HasCommitment() {
		if elapsed := MonthsElapsed(sub.StartedAt, now); elapsed < plan.CommitmentMonths {
			s.logger.Info("plan cancel rejected",
				"plan", plan.ID,
				"months_elapsed", elapsed,
				"commitment_months", plan.CommitmentMonths,
			)
			s.record(plan.ID, EventRejected)
			return ErrCommitmentNotElapsed.WithDetails(map[string]any{
				"months_remaining": plan.CommitmentMonths - elapsed,
			})
		}
	}

	SaveSubscription(sess, Subscription{Canceled: true})

	s.logger.Info("plan canceled", "plan", sub.PlanID)
	s.record(sub.PlanID, EventCanceled)
	return nil
}

// Status returns the account state for display.
func (s *Service) Status(sess types.SessionValues) StatusDisplay {
	sub := LoadSubscription(sess)
	d := Evaluate(sub, s.catalog, s.clock.Now())
	return StatusDisplay{
		PlanID:      sub.PlanID,
		DisplayName: d.DisplayName,
		Active:      d.Active,
		Expiry:      d.Expiry,
	}
}

func (s *Service) record(plan PlanID, event string) {
	if s.events != nil {
		s.events.RecordPlanEvent(string(plan), event)
	}
}
