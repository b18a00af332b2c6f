package core

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"seep/internal/types"
)

// RateLimitWindow is the window Config.Server.ChatRateLimit is counted over.
const RateLimitWindow = time.Minute

// rateLimitMaxKeys bounds the number of clients tracked at once.
const rateLimitMaxKeys = 10000

// RateLimit enforces Config.Server.ChatRateLimit requests per minute for each
// client IP. It is applied per route by the registrars, not globally.
//
// If no RateLimitStore is configured or the limit is zero, the middleware
// passes through.
//
// Every checked response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. A denied request also gets Retry-After and a 429.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	limit := 0
	trustProxy := false
	if s.Config != nil {
		limit = s.Config.Server.ChatRateLimit
		trustProxy = s.Config.Server.TrustProxy
	}
	if s.RateLimitStore == nil || limit <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractClientIP(r, trustProxy)

		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, RateLimitWindow)
		if err != nil {
			// Fail open: a limiter fault must not take chat offline.
			s.Logger.Error("rate limit store error",
				slog.String("client", key),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)

		if !result.Allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("client", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			retryAfter := int(math.Ceil(time.Until(result.ResetAt).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			Error(w, r, types.NewAppError(
				types.ErrCodeRateLimitExceeded,
				"Too many messages. Please wait a moment and try again.",
				nil,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setRateLimitHeaders writes the standard X-RateLimit-* headers to the response.
func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// extractClientIP returns RemoteAddr without its port. Behind a trusted
// proxy it returns the last X-Forwarded-For entry instead: the address the
// proxy itself appended. Earlier entries are client-supplied.
func extractClientIP(r *http.Request, trustProxy bool) string {
	if xff := r.Header.Get("X-Forwarded-For"); trustProxy && xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr may not have a port (e.g., in tests).
		return r.RemoteAddr
	}
	return ip
}

// MemoryRateLimitStore keeps one token bucket per key in a bounded LRU.
// Idle buckets expire after one window, at which point they would have
// refilled anyway.
type MemoryRateLimitStore struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	clock    types.Clock
}

// NewMemoryRateLimitStore creates a store tracking at most maxKeys clients.
// Buckets idle for longer than window are dropped; pass the window the
// limiter is checked with. A nil clock uses types.RealClock.
func NewMemoryRateLimitStore(maxKeys int, window time.Duration, clock types.Clock) *MemoryRateLimitStore {
	if maxKeys <= 0 {
		maxKeys = rateLimitMaxKeys
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryRateLimitStore{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxKeys, nil, window),
		clock:    clock,
	}
}

// IncrementAndCheck implements RateLimitStore.
func (m *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := m.clock.Now()
	interval := window / time.Duration(limit)

	m.mu.Lock()
	lim, ok := m.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), limit)
	}
	// Re-adding refreshes the idle expiry.
	m.limiters.Add(key, lim)
	m.mu.Unlock()

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	var resetAt time.Time
	if allowed {
		missing := float64(limit) - tokens
		resetAt = now.Add(time.Duration(missing * float64(interval)))
	} else {
		resetAt = now.Add(time.Duration((1 - tokens) * float64(interval)))
	}

	return RateLimitResult{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}
