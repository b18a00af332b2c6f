package session

import (
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Store holds live sessions in a TTL-bounded LRU.
type Store struct {
	cache *lru.LRU[string, *Session]
}

// NewStore creates a store holding at most maxEntries sessions, each expiring
// after idleTTL without access.
func NewStore(maxEntries int, idleTTL time.Duration) *Store {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Store{cache: lru.NewLRU[string, *Session](maxEntries, nil, idleTTL)}
}

// New returns an empty session with a fresh id. It is not stored until Save.
func (s *Store) New() *Session {
	return newSession(uuid.NewString())
}

// Save stores sess, replacing any session with the same id.
func (s *Store) Save(sess *Session) {
	s.cache.Add(sess.id, sess)
}

// Get returns the session for id and refreshes its idle timer.
func (s *Store) Get(id string) (*Session, bool) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	// Re-adding resets the expiry.
	s.cache.Add(id, sess)
	return sess, true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}
