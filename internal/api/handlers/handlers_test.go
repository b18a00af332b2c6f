package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seep/internal/access"
	"seep/internal/billing"
	"seep/internal/chat"
	"seep/internal/core"
	"seep/internal/session"
	"seep/internal/types"
)

type mockResponder struct {
	replyFn func(ctx context.Context, bot chat.Bot, prompt string) (string, error)
	calls   []chat.Bot
}

func (m *mockResponder) Reply(ctx context.Context, bot chat.Bot, prompt string) (string, error) {
	m.calls = append(m.calls, bot)
	if m.replyFn != nil {
		return m.replyFn(ctx, bot, prompt)
	}
	return "Hello from " + bot.Name, nil
}

var _ ChatResponder = (*mockResponder)(nil)

type fixture struct {
	clock     *types.FixedClock
	sess      *session.Session
	responder *mockResponder
	router    *chi.Mux
}

func newFixture(t *testing.T, defaults access.Defaults) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	clock := &types.FixedClock{T: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
	sess := session.NewStore(10, time.Hour).New()

	plans := billing.NewService(billing.ServiceConfig{Clock: clock, Logger: logger})
	guard := access.NewGuard(plans, defaults)
	responder := &mockResponder{}
	pages, err := LoadPages()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(session.WithSession(req.Context(), sess)))
		})
	})
	NewChatHandler(guard, responder, pages, logger).RegisterRoutes(r, nil)
	NewSetupHandler(guard, core.NewValidator(logger), pages, logger).RegisterRoutes(r)
	NewBillingHandler(plans, pages, logger).RegisterRoutes(r)
	RegisterStatic(r)

	return &fixture{clock: clock, sess: sess, responder: responder, router: r}
}

func defaultBot() access.Defaults {
	return access.Defaults{BotName: "SEEP", ShopDomain: "example.myshopify.com"}
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func (f *fixture) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) postJSON(target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// subscribeAndSetup brings the session to a fully authorized state.
func (f *fixture) subscribeAndSetup(t *testing.T, plan string) {
	t.Helper()
	rec := f.postForm("/billing/subscribe/"+plan, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = f.postForm("/setup", url.Values{
		"bot_name":       {"Ava"},
		"shopify_domain": {"https://Demo.myshopify.com/"},
		"shopify_token":  {"shpat_123"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, path, message string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, path, loc.Path)
	assert.Equal(t, message, loc.Query().Get("message"))
}

// --- Index ---

func TestIndex_WithoutPlanRedirectsToBilling(t *testing.T) {
	f := newFixture(t, defaultBot())
	assertRedirect(t, f.get("/"), "/billing/select", "Please choose a plan to continue.")
}

func TestIndex_WithPlanButNoSetupRedirectsToSetup(t *testing.T) {
	f := newFixture(t, defaultBot())
	assertRedirect(t, f.postForm("/billing/subscribe/monthly", nil), "/", "")

	assertRedirect(t, f.get("/"), "/setup", "Please finish setting up your bot.")
}

func TestIndex_Authorized(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.subscribeAndSetup(t, "monthly")

	rec := f.get("/")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Ava</h1>")
	assert.Contains(t, body, "demo.myshopify.com")
	assert.Contains(t, body, "Free Trial + Monthly")
	assert.Contains(t, body, "Jan 22, 2026")
	assert.Contains(t, body, `bot_name: "Ava"`)
}

// --- Chat ---

func TestChat_DeniedWithoutPlan(t *testing.T) {
	f := newFixture(t, defaultBot())

	rec := f.postJSON("/chat", `{"prompt":"hi"}`)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeSubscriptionRequired), resp.Error.Code)
	assert.Equal(t, "/billing/select", resp.Error.Details["redirect"])
	assert.Empty(t, f.responder.calls)
}

func TestChat_DeniedWithoutSetup(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.postForm("/billing/subscribe/3m", nil)

	rec := f.postJSON("/chat", `{"prompt":"hi"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/setup"`)
}

func TestChat_Reply(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.subscribeAndSetup(t, "monthly")

	rec := f.postJSON("/chat", `{"prompt":"what is new?","shop_domain":"ignored.example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Hello from Ava"}`, rec.Body.String())
	require.Len(t, f.responder.calls, 1)
	bot := f.responder.calls[0]
	assert.Equal(t, "demo.myshopify.com", bot.Store.Domain)
	assert.Equal(t, "shpat_123", bot.Store.Token)
}

func TestChat_LLMFailure(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.subscribeAndSetup(t, "monthly")
	f.responder.replyFn = func(context.Context, chat.Bot, string) (string, error) {
		return "", types.NewAppError(types.ErrCodeUpstreamLLM, "chat completion failed", errors.New("503"))
	}

	rec := f.postJSON("/chat", `{"prompt":"hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"server_error"}`, rec.Body.String())
}

func TestChat_EmptyPrompt(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.subscribeAndSetup(t, "monthly")
	f.responder.replyFn = func(context.Context, chat.Bot, string) (string, error) {
		return "", chat.ErrEmptyPrompt
	}

	rec := f.postJSON("/chat", `{"prompt":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_MalformedBody(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.subscribeAndSetup(t, "monthly")

	rec := f.postJSON("/chat", `{"prompt":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.responder.calls)
}

// --- Setup ---

func TestSetupView_FirstTimeIsOpenWithoutPlan(t *testing.T) {
	f := newFixture(t, defaultBot())

	rec := f.get("/setup")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="SEEP"`)
	assert.Contains(t, rec.Body.String(), "Storefront API token")
}

func TestSetupView_ConfiguredDefaultsRequirePlan(t *testing.T) {
	d := defaultBot()
	d.StorefrontToken = "shpat_default"
	f := newFixture(t, d)

	assertRedirect(t, f.get("/setup"), "/billing/select", "Please choose a plan to continue.")
}

func TestSetupView_NeverEchoesToken(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.subscribeAndSetup(t, "monthly")

	rec := f.get("/setup")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "shpat_123")
	assert.Contains(t, rec.Body.String(), "Leave blank to keep it.")
}

func TestSetupSave_RequiresPlan(t *testing.T) {
	f := newFixture(t, defaultBot())

	rec := f.postForm("/setup", url.Values{"bot_name": {"Ava"}, "shopify_domain": {"demo.myshopify.com"}})

	assertRedirect(t, rec, "/billing/select", "Please choose a plan to continue.")
	_, ok := f.sess.Get(access.KeyBotName)
	assert.False(t, ok)
}

func TestSetupSave_RecordsSettings(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.subscribeAndSetup(t, "monthly")

	got := access.LoadBotSettings(f.sess)
	assert.Equal(t, access.BotSettings{
		BotName:         "Ava",
		ShopDomain:      "demo.myshopify.com",
		StorefrontToken: "shpat_123",
	}, got)

	// A blank token keeps the saved one.
	rec := f.postForm("/setup", url.Values{
		"bot_name":       {"Ava 2"},
		"shopify_domain": {"demo.myshopify.com"},
		"shopify_token":  {""},
	})
	assertRedirect(t, rec, "/", "")
	assert.Equal(t, "shpat_123", access.LoadBotSettings(f.sess).StorefrontToken)
	assert.Equal(t, "Ava 2", access.LoadBotSettings(f.sess).BotName)
}

func TestSetupSave_MissingFieldsUseDefaults(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.postForm("/billing/subscribe/monthly", nil)

	rec := f.postForm("/setup", url.Values{})

	assertRedirect(t, rec, "/", "")
	got := access.LoadBotSettings(f.sess)
	assert.Equal(t, "SEEP", got.BotName)
	assert.Equal(t, "example.myshopify.com", got.ShopDomain)
}

func TestSetupSave_InvalidInputRerendersForm(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.postForm("/billing/subscribe/monthly", nil)

	rec := f.postForm("/setup", url.Values{
		"bot_name":       {""},
		"shopify_domain": {"127.0.0.1"},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "bot_name is required")
	assert.Contains(t, body, "store hostname")
	_, ok := f.sess.Get(access.KeyShopDomain)
	assert.False(t, ok)
}

// --- Billing ---

func TestBillingSelect_ListsPlans(t *testing.T) {
	f := newFixture(t, defaultBot())

	rec := f.get("/billing/select?message=Invalid+plan.")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Invalid plan.")
	assert.Contains(t, body, "$19.99/mo")
	assert.Contains(t, body, "then $14.99 for 30 days")
	assert.Contains(t, body, "$13.33/mo")
	assert.Contains(t, body, "12-month commitment")
	assert.Contains(t, body, "You have no active plan.")
	assert.NotContains(t, body, "Cancel plan")
}

func TestBillingSelect_ShowsCurrentPlan(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.postForm("/billing/subscribe/6m", nil)

	body := f.get("/billing/select").Body.String()

	assert.Contains(t, body, "Current plan: <strong>6-Month Commitment</strong>")
	assert.Contains(t, body, "<em>Current</em>")
	assert.Contains(t, body, "Cancel plan")
}

func TestSubscribe_InvalidPlan(t *testing.T) {
	f := newFixture(t, defaultBot())

	assertRedirect(t, f.postForm("/billing/subscribe/gold", nil), "/billing/select", "Invalid plan.")
	_, ok := f.sess.Get(billing.KeyPlan)
	assert.False(t, ok)
}

func TestCancel_NothingActive(t *testing.T) {
	f := newFixture(t, defaultBot())
	assertRedirect(t, f.postForm("/billing/cancel", nil), "/billing/select", "There is no active plan to cancel.")
}

func TestCancel_CommitmentLifecycle(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.postForm("/billing/subscribe/3m", nil)

	f.clock.T = time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)
	assertRedirect(t, f.postForm("/billing/cancel", nil), "/billing/select",
		"This plan cannot be canceled until the commitment period ends.")

	f.clock.T = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	assertRedirect(t, f.postForm("/billing/cancel", nil), "/billing/select", MessageCanceled)

	var status billing.StatusDisplay
	require.NoError(t, json.Unmarshal(f.get("/billing/status").Body.Bytes(), &status))
	assert.False(t, status.Active)
	assertRedirect(t, f.get("/"), "/billing/select", "Please choose a plan to continue.")
}

func TestStatus_ActiveTrial(t *testing.T) {
	f := newFixture(t, defaultBot())
	f.postForm("/billing/subscribe/monthly", nil)

	rec := f.get("/billing/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var status billing.StatusDisplay
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Active)
	assert.Equal(t, billing.PlanMonthly, status.PlanID)
	require.NotNil(t, status.Expiry)
	assert.Equal(t, time.Date(2026, 1, 22, 9, 0, 0, 0, time.UTC), status.Expiry.UTC())
}

// --- Static ---

func TestStatic_WidgetScript(t *testing.T) {
	f := newFixture(t, defaultBot())

	rec := f.get("/static/seep.js")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFIG.bot_name")
	assert.Equal(t, "public, max-age=300", rec.Header().Get("Cache-Control"))
}

func TestMissingSession(t *testing.T) {
	pages, err := LoadPages()
	require.NoError(t, err)
	h := NewBillingHandler(billing.NewService(billing.ServiceConfig{}), pages, nil)

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/billing/status", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(types.ErrCodeInternalSession))
}
