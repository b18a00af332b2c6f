package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"seep/internal/access"
	"seep/internal/core"
	"seep/internal/types"
)

// maxFormSize bounds the setup form body.
const maxFormSize = 64 << 10

// SetupForm is the body of POST /setup.
type SetupForm struct {
	BotName         string `form:"bot_name" validate:"required,max=64,no_control"`
	ShopDomain      string `form:"shopify_domain" validate:"required,max=253,shop_domain"`
	StorefrontToken string `form:"shopify_token" validate:"max=255,no_control"`
}

// ValidationWarnings flags storefronts outside the commerce platform's own
// domain. Custom domains work but are a common source of typos.
func (f SetupForm) ValidationWarnings() []string {
	if f.ShopDomain != "" && !strings.HasSuffix(f.ShopDomain, ".myshopify.com") {
		return []string{"Custom domains work, but double-check it serves the Storefront API."}
	}
	return nil
}

// setupView is the data for templates/setup.html.
type setupView struct {
	BotName    string
	ShopDomain string
	HasToken   bool
	Message    string
	Errors     []core.ValidationError
}

// SetupHandler serves the bot configuration page.
type SetupHandler struct {
	guard     AccessGuard
	validator *core.Validator
	pages     *Pages
	logger    *slog.Logger
}

// NewSetupHandler creates a new SetupHandler.
func NewSetupHandler(guard AccessGuard, v *core.Validator, pages *Pages, logger *slog.Logger) *SetupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetupHandler{guard: guard, validator: v, pages: pages, logger: logger}
}

// RegisterRoutes mounts GET and POST /setup.
func (h *SetupHandler) RegisterRoutes(r chi.Router) {
	r.Get(access.PathSetup, h.HandleView)
	r.Post(access.PathSetup, h.HandleSave)
}

// HandleView handles GET /setup. First-time setup is open without a plan;
// see access.Guard.AllowSetupView.
func (h *SetupHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	if allowed, redirect := h.guard.AllowSetupView(sess); !allowed {
		core.SeeOther(w, r, redirect.Location())
		return
	}

	resolved := access.LoadBotSettings(sess).Resolve(h.guard.Defaults())
	h.pages.render(w, r, h.logger, http.StatusOK, "setup.html", setupView{
		BotName:    resolved.BotName,
		ShopDomain: resolved.ShopDomain,
		HasToken:   resolved.StorefrontToken != "",
		Message:    r.URL.Query().Get("message"),
	})
}

// HandleSave handles POST /setup.
//
// Flow:
//  1. Require an active plan.
//  2. Read the form; absent fields fall back to the process defaults.
//  3. Validate; failures re-render the form with 400.
//  4. Record the settings (a blank token keeps the saved one) and go to /.
func (h *SetupHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	if allowed, redirect := h.guard.RequireBilling(sess); !allowed {
		core.SeeOther(w, r, redirect.Location())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField, "invalid form submission", err))
		return
	}

	defaults := h.guard.Defaults()
	form := SetupForm{
		BotName:         formValue(r, "bot_name", defaults.BotName),
		ShopDomain:      access.NormalizeDomain(formValue(r, "shopify_domain", defaults.ShopDomain)),
		StorefrontToken: strings.TrimSpace(r.PostForm.Get("shopify_token")),
	}

	result := h.validator.ValidateStructWithWarnings(form)
	if !result.IsValid() {
		h.pages.render(w, r, h.logger, http.StatusBadRequest, "setup.html", setupView{
			BotName:    form.BotName,
			ShopDomain: form.ShopDomain,
			HasToken:   access.LoadBotSettings(sess).Resolve(defaults).StorefrontToken != "",
			Errors:     result.Errors,
		})
		return
	}
	for _, warning := range result.Warnings {
		h.logger.InfoContext(r.Context(), "setup accepted with warning",
			"domain", form.ShopDomain,
			"warning", warning,
		)
	}

	access.SaveBotSettings(sess, access.BotSettings{
		BotName:         form.BotName,
		ShopDomain:      form.ShopDomain,
		StorefrontToken: form.StorefrontToken,
	})
	h.logger.InfoContext(r.Context(), "bot setup saved",
		"domain", form.ShopDomain,
		"token_updated", form.StorefrontToken != "",
	)

	core.SeeOther(w, r, "/")
}

// formValue returns the trimmed posted value of key, or def when the field
// was not submitted at all.
func formValue(r *http.Request, key, def string) string {
	if _, present := r.PostForm[key]; !present {
		return def
	}
	return strings.TrimSpace(r.PostForm.Get(key))
}
