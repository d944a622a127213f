package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type contextKey struct{}

// WithAddress returns a context carrying the connected wallet address.
func WithAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, contextKey{}, address)
}

// AddressFromContext returns the connected wallet address, if any.
func AddressFromContext(ctx context.Context) (string, bool) {
	address, ok := ctx.Value(contextKey{}).(string)
	return address, ok && address != ""
}

const (
	rateLimitWindow  = 1 * time.Minute
	rateLimitMaxFail = 10
)

// rateLimiter tracks failed API key attempts per IP.
type rateLimiter struct {
	mu       sync.Mutex
	now      func() time.Time
	attempts map[string][]time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{now: time.Now, attempts: make(map[string][]time.Time)}
}

// prune drops attempts outside the window; caller holds mu.
func (rl *rateLimiter) prune(ip string) []time.Time {
	cutoff := rl.now().Add(-rateLimitWindow)
	valid := rl.attempts[ip][:0]
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, ip)
		return nil
	}
	rl.attempts[ip] = valid
	return valid
}

func (rl *rateLimiter) limited(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.prune(ip)) >= rateLimitMaxFail
}

func (rl *rateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.attempts[ip] = append(rl.prune(ip), rl.now())
}

// Authenticator resolves the wallet address behind a request from either
// the session cookie or a bearer API key.
type Authenticator struct {
	sessions *SessionStore
	keys     *APIKeyStore
	limiter  *rateLimiter
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(sessions *SessionStore, keys *APIKeyStore) *Authenticator {
	return &Authenticator{sessions: sessions, keys: keys, limiter: newRateLimiter()}
}

// LoadAccount attaches the session's address to the request context when
// a valid session exists. Requests without one pass through disconnected.
func (a *Authenticator) LoadAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if address, err := a.sessions.Validate(r); err == nil {
			r = r.WithContext(WithAddress(r.Context(), address))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccount rejects requests that carry neither a valid session nor a
// valid bearer API key. Returns 401 for missing/invalid credentials and 429
// once an IP has failed too many key checks.
func (a *Authenticator) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AddressFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		if address, err := a.sessions.Validate(r); err == nil {
			next.ServeHTTP(w, r.WithContext(WithAddress(r.Context(), address)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}
		key := strings.TrimPrefix(authHeader, "Bearer ")

		ip := clientIP(r)
		if a.limiter.limited(ip) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		address, err := a.keys.Validate(key)
		if err != nil {
			slog.Error("validating api key", "err", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if address == "" {
			a.limiter.recordFailure(ip)
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAddress(r.Context(), address)))
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
