package session

import (
	"log/slog"
	"net/http"
	"time"

	"seep/internal/types"
)

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	// MaxAge is the cookie lifetime, renewed on every request. Zero makes it
	// a browser-session cookie.
	MaxAge time.Duration
}

// Manager attaches a session to every request.
type Manager struct {
	store  *Store
	codec  *Codec
	cookie CookieConfig
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(store *Store, codec *Codec, cookie CookieConfig, logger *slog.Logger) *Manager {
	if cookie.Name == "" {
		cookie.Name = "seep_session"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, codec: codec, cookie: cookie, logger: logger}
}

// Middleware loads the session named by the request cookie and renews the
// cookie's lifetime. Requests without a usable cookie get a new session that
// is only stored, and only sent as a cookie, once a handler writes to it, so
// anonymous traffic cannot evict stored sessions. Handlers must write session
// values before writing the response.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, token, ok := m.load(r)
		if ok {
			if m.cookie.MaxAge > 0 {
				m.setCookie(w, token)
			}
		} else {
			sess = m.start(w, r)
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func (m *Manager) load(r *http.Request) (*Session, string, bool) {
	c, err := r.Cookie(m.cookie.Name)
	if err != nil || c.Value == "" {
		return nil, "", false
	}
	id, err := m.codec.Decode(c.Value)
	if err != nil {
		m.logger.DebugContext(r.Context(), "session cookie rejected",
			"request_id", types.GetRequestID(r.Context()),
			"error", err,
		)
		return nil, "", false
	}
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, "", false
	}
	return sess, c.Value, true
}

func (m *Manager) start(w http.ResponseWriter, r *http.Request) *Session {
	sess := m.store.New()
	sess.onFirstSet(func() {
		token, err := m.codec.Encode(sess.ID())
		if err != nil {
			m.logger.ErrorContext(r.Context(), "session start failed",
				"request_id", types.GetRequestID(r.Context()),
				"error", err,
			)
			return
		}
		m.store.Save(sess)
		m.setCookie(w, token)
		m.logger.DebugContext(r.Context(), "session started",
			"request_id", types.GetRequestID(r.Context()),
			"live_sessions", m.store.Len(),
		)
	})
	return sess
}

func (m *Manager) setCookie(w http.ResponseWriter, token string) {
	cookie := &http.Cookie{
		Name:     m.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if m.cookie.MaxAge > 0 {
		cookie.MaxAge = int(m.cookie.MaxAge / time.Second)
	}
	http.SetCookie(w, cookie)
}
