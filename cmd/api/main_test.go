package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seep/internal/config"
	"seep/internal/core"
)

// buildTestServer wires the production graph with stubbed upstreams.
func buildTestServer(t *testing.T) *core.Server {
	t.Helper()
	setTestEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := buildServer(t.Context(), cfg, logger)
	require.NoError(t, err)
	return srv
}

// newBrowser returns a client that keeps cookies and does not follow
// redirects, so each 303 can be asserted.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := buildTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := buildTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsEndpoint_DisabledBackend(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "none")
	srv := buildTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildServer_InvalidMetricsBackend(t *testing.T) {
	setTestEnv(t)
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.Observability.MetricsBackend = "statsd"

	_, err = buildServer(t.Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "metrics collector")
}

func TestStaticWidgetScript(t *testing.T) {
	srv := buildTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/seep.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFIG")
}

// TestVisitorFlow walks a new visitor from the first page load to a chat
// reply: plan selection, trial start, setup and chat.
func TestVisitorFlow(t *testing.T) {
	ts := httptest.NewServer(buildTestServer(t).Handler())
	t.Cleanup(ts.Close)
	client := newBrowser(t)

	// No plan yet.
	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/billing/select", resp.Header.Get("Location"))
	assert.Empty(t, resp.Cookies(), "browsing alone stores no session")

	// Chat is refused with the same target.
	resp, err = client.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{"prompt":"hi"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "/billing/select")

	// Start the monthly trial.
	resp, err = client.Post(ts.URL+"/billing/subscribe/monthly", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, 86400, resp.Cookies()[0].MaxAge)

	resp, err = client.Get(ts.URL + "/billing/status")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, true, status["active"])

	// Configure the bot.
	resp, err = client.PostForm(ts.URL+"/setup", url.Values{
		"bot_name":       {"Sprout"},
		"shopify_domain": {"https://Demo.myshopify.com/"},
		"shopify_token":  {"tok_123"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	// The chat page now renders with the saved bot.
	resp, err = client.Get(ts.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Sprout")
	assert.Contains(t, string(body), "demo.myshopify.com")

	// And chat answers through the stub LLM.
	resp, err = client.Post(ts.URL+"/chat", "application/json", bytes.NewReader([]byte(`{"prompt":"hello there"}`)))
	require.NoError(t, err)
	var reply struct {
		Reply string `json:"reply"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "You said: hello there", reply.Reply)
}

func TestChatRateLimit(t *testing.T) {
	t.Setenv("CHAT_RATE_LIMIT", "2")
	ts := httptest.NewServer(buildTestServer(t).Handler())
	t.Cleanup(ts.Close)
	client := newBrowser(t)

	var last *http.Response
	for range 3 {
		resp, err := client.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{"prompt":"hi"}`))
		require.NoError(t, err)
		resp.Body.Close()
		last = resp
	}

	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.NotEmpty(t, last.Header.Get("Retry-After"))
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			assert.NotNil(t, newLogger(level))
		})
	}
}

// setTestEnv sets the minimal environment config.LoadConfig needs for a
// local run with stubbed upstreams.
func setTestEnv(t *testing.T) {
	t.Helper()

	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "8080")
	t.Setenv("SESSION_KEY", "local-dev-session-key-minimum-32-chars-long")
	t.Setenv("UPSTREAM_STUB", "true")
	t.Setenv("SHOPIFY_STOREFRONT_TOKEN", "")
}
