package core

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"seep/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{Environment: "local"}
	cfg.Server.RequestTimeout = 5 * time.Second
	srv, err := NewServer(cfg, testLogger())
	require.NoError(t, err)
	return srv
}

type recordedRequest struct {
	Method, Endpoint, Status string
}

type mockMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
	closed   bool
	closeErr error
}

func (m *mockMetrics) RecordRequest(method, endpoint, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, endpoint, status})
}

func (m *mockMetrics) Recorded() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRequest(nil), m.requests...)
}
