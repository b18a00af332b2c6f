package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"seep/internal/access"
	"seep/internal/chat"
	"seep/internal/core"
	"seep/internal/external"
	"seep/internal/types"
)

// AccessGuard is the part of access.Guard the handlers use.
type AccessGuard interface {
	Authorize(sess types.SessionValues) (*access.Permit, *access.Redirect)
	AllowSetupView(sess types.SessionValues) (bool, *access.Redirect)
	RequireBilling(sess types.SessionValues) (bool, *access.Redirect)
	Defaults() access.Defaults
}

// ChatResponder answers a prompt on behalf of a bot.
type ChatResponder interface {
	Reply(ctx context.Context, bot chat.Bot, prompt string) (string, error)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Prompt string `json:"prompt"`
	// ShopDomain is sent by the widget but the session's domain is
	// authoritative.
	ShopDomain string `json:"shop_domain,omitempty"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// chatFailure is the body returned when the LLM call fails.
type chatFailure struct {
	Error string `json:"error"`
}

// indexView is the data for templates/index.html.
type indexView struct {
	BotName    string
	ShopDomain string
	Plan       string
	Expiry     *time.Time
}

// ChatHandler serves the chat page and the chat endpoint.
type ChatHandler struct {
	guard     AccessGuard
	responder ChatResponder
	pages     *Pages
	logger    *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(guard AccessGuard, responder ChatResponder, pages *Pages, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{guard: guard, responder: responder, pages: pages, logger: logger}
}

// RegisterRoutes mounts GET / and POST /chat. limit wraps the chat endpoint
// only; pass nil to disable it.
func (h *ChatHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Get("/", h.HandleIndex)
	if limit != nil {
		r.With(limit).Post("/chat", h.HandleChat)
	} else {
		r.Post("/chat", h.HandleChat)
	}
}

// HandleIndex handles GET /. Denied visitors are redirected to plan
// selection or setup.
func (h *ChatHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	permit, redirect := h.guard.Authorize(sess)
	if redirect != nil {
		core.SeeOther(w, r, redirect.Location())
		return
	}

	h.pages.render(w, r, h.logger, http.StatusOK, "index.html", indexView{
		BotName:    permit.BotName,
		ShopDomain: permit.ShopDomain,
		Plan:       permit.Plan,
		Expiry:     permit.Expiry,
	})
}

// HandleChat handles POST /chat.
//
// Flow:
//  1. Authorize the session; a denial is a JSON error with the redirect target.
//  2. Decode {prompt}.
//  3. Reply using the permit's bot name and storefront.
//  4. Validation errors map through core.Error; an LLM failure is a 500
//     {"error":"server_error"}.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r)
	if !ok {
		return
	}

	permit, redirect := h.guard.Authorize(sess)
	if redirect != nil {
		core.Error(w, r, redirect.Err())
		return
	}

	var req ChatRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	reply, err := h.responder.Reply(r.Context(), chat.Bot{
		Name: permit.BotName,
		Store: external.StoreRef{
			Domain: permit.ShopDomain,
			Token:  permit.StorefrontToken,
		},
	}, req.Prompt)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyPrompt) {
			core.Error(w, r, err)
			return
		}
		h.logger.ErrorContext(r.Context(), "chat reply failed",
			"request_id", types.GetRequestID(r.Context()),
			"domain", permit.ShopDomain,
			"error", err,
		)
		core.JSON(w, r, http.StatusInternalServerError, chatFailure{Error: "server_error"})
		return
	}

	core.JSON(w, r, http.StatusOK, ChatResponse{Reply: reply})
}
