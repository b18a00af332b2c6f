package billing

import (
	"bytes"
	"log/slog"
	"sync"
	"time"
)

// mapSession is an in-memory SessionValues for tests.
type mapSession map[string]string

func (m mapSession) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapSession) Set(key, value string) { m[key] = value }
func (m mapSession) Delete(key string)     { delete(m, key) }

func (m mapSession) clone() mapSession {
	out := make(mapSession, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type recordedEvent struct {
	plan  string
	event string
}

type mockRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *mockRecorder) RecordPlanEvent(plan, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{plan, event})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}
