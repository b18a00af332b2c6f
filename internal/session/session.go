// Package session keeps per-visitor state in memory behind a signed cookie.
// Sessions expire after an idle TTL and the oldest are evicted when the store
// is full. Nothing survives a restart.
package session

import (
	"context"
	"sync"

	"seep/internal/types"
)

// Session is one visitor's key-value state. It is safe for concurrent use;
// concurrent writers are last-writer-wins.
type Session struct {
	id string

	mu     sync.RWMutex
	values map[string]string
	// persist stores a new session on its first Set. Nil once stored.
	persist func()
}

var _ types.SessionValues = (*Session)(nil)

func newSession(id string) *Session {
	return &Session{id: id, values: make(map[string]string)}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	persist := s.persist
	s.persist = nil
	s.mu.Unlock()

	if persist != nil {
		persist()
	}
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// onFirstSet registers fn to run once, on the first Set.
func (s *Session) onFirstSet(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = fn
}

type sessionKey struct{}

// WithSession stores sess in the context.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext returns the request's session, or nil outside the middleware.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}
