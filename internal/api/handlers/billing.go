package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"seep/internal/access"
	"seep/internal/billing"
	"seep/internal/core"
	"seep/internal/types"
)

// Billing page messages.
const (
	MessageCanceled = "Subscription canceled."
)

// PlanService is the part of billing.Service the handlers use.
type PlanService interface {
	Catalog() billing.Catalog
	StartPlan(sess types.SessionValues, planID billing.PlanID) error
	CancelPlan(sess types.SessionValues) error
	Status(sess types.SessionValues) billing.StatusDisplay
}

// planView is one row of the plan table.
type planView struct {
	ID               billing.PlanID
	Name             string
	MonthlyPrice     string
	IntroPrice       string
	TrialDays        int
	CommitmentMonths int
	Current          bool
}

// billingView is the data for templates/billing_select.html.
type billingView struct {
	Message     string
	Plans       []planView
	Status      billing.StatusDisplay
	CurrentPlan billing.PlanID
}

// BillingHandler serves plan selection, start, cancel and status.
type BillingHandler struct {
	service PlanService
	pages   *Pages
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(svc PlanService, pages *Pages, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{service: svc, pages: pages, logger: logger}
}

// RegisterRoutes mounts the /billing endpoints. None of them are guarded:
// they are where guarded routes send visitors.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/select", h.HandleSelect)
		r.Post("/subscribe/{plan}", h.HandleSubscribe)
		r.Post("/cancel", h.HandleCancel)
		r.Get("/status", h.HandleStatus)
	})
}

// HandleSelect handles GET /billing/select.
func (h *BillingHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	status := h.service.Status(sess)
	plans := h.service.Catalog().Plans()
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		v := planView{
			ID:               p.ID,
			Name:             p.DisplayName,
			MonthlyPrice:     p.MonthlyPrice.StringFixed(2),
			TrialDays:        p.TrialDays,
			CommitmentMonths: p.CommitmentMonths,
			Current:          status.Active && p.ID == status.PlanID,
		}
		if p.IntroPrice.Valid {
			v.IntroPrice = p.IntroPrice.Decimal.StringFixed(2)
		}
		views = append(views, v)
	}

	current := billing.PlanID("")
	if status.Active {
		current = status.PlanID
	}

	h.pages.render(w, r, h.logger, http.StatusOK, "billing_select.html", billingView{
		Message:     r.URL.Query().Get("message"),
		Plans:       views,
		Status:      status,
		CurrentPlan: current,
	})
}

// HandleSubscribe handles POST /billing/subscribe/{plan}. Success goes to the
// chat page, which forwards to setup when the bot is not configured yet.
func (h *BillingHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	planID := billing.PlanID(chi.URLParam(r, "plan"))
	if err := h.service.StartPlan(sess, planID); err != nil {
		h.redirectWithError(w, r, err)
		return
	}

	core.SeeOther(w, r, "/")
}

// HandleCancel handles POST /billing/cancel. Every outcome returns to plan
// selection with a message.
func (h *BillingHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelPlan(sess); err != nil {
		h.redirectWithError(w, r, err)
		return
	}

	core.SeeOther(w, r, selectLocation(MessageCanceled))
}

// HandleStatus handles GET /billing/status.
func (h *BillingHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, h.service.Status(sess))
}

// redirectWithError sends plan lifecycle errors back to plan selection with
// their user-facing message. Anything else is unexpected.
func (h *BillingHandler) redirectWithError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		core.SeeOther(w, r, selectLocation(appErr.Message))
		return
	}
	h.logger.ErrorContext(r.Context(), "plan operation failed",
		"request_id", types.GetRequestID(r.Context()),
		"error", err,
	)
	core.Error(w, r, err)
}

func selectLocation(message string) string {
	return access.PathBillingSelect + "?" + url.Values{"message": {message}}.Encode()
}
