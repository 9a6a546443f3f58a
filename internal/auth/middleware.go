package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// contextKey is used for storing claims in context.
type contextKey string

const claimsContextKey contextKey = "claims"

// TokenVerifier validates bearer tokens. *Provider implements it.
type TokenVerifier interface {
	// VerifyToken verifies a JWT ID token.
	VerifyToken(ctx context.Context, rawToken string) (*Claims, error)

	// VerifyAccessToken verifies an opaque access token.
	VerifyAccessToken(ctx context.Context, accessToken string) (*Claims, error)
}

// Middleware provides HTTP middleware for authentication and authorization.
type Middleware struct {
	verifier      TokenVerifier
	enabled       bool
	publicPaths   map[string]bool
	prefix        string
	mutationsOnly bool
	requiredRoles []string
	now           func() time.Time
}

// MiddlewareConfig holds middleware configuration.
type MiddlewareConfig struct {
	// Enabled controls whether auth is enforced
	Enabled bool

	// PublicPaths are paths that don't require authentication
	PublicPaths []string

	// ProtectedPrefix limits enforcement to paths under it (default: all paths)
	ProtectedPrefix string

	// MutationsOnly lets GET, HEAD and OPTIONS requests through unauthenticated
	MutationsOnly bool

	// RequiredRoles are roles required for all protected endpoints
	RequiredRoles []string
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(verifier TokenVerifier, cfg *MiddlewareConfig) *Middleware {
	if cfg == nil {
		cfg = &MiddlewareConfig{}
	}

	publicPaths := make(map[string]bool)
	// Default public paths
	publicPaths["/health"] = true
	publicPaths["/healthz"] = true
	publicPaths["/ready"] = true

	for _, p := range cfg.PublicPaths {
		publicPaths[p] = true
	}

	return &Middleware{
		verifier:      verifier,
		enabled:       cfg.Enabled,
		publicPaths:   publicPaths,
		prefix:        cfg.ProtectedPrefix,
		mutationsOnly: cfg.MutationsOnly,
		requiredRoles: cfg.RequiredRoles,
		now:           time.Now,
	}
}

// Handler returns the auth middleware handler.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.protects(r) {
			next.ServeHTTP(w, r)
			return
		}

		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.unauthorized(w, "missing authorization header")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			m.unauthorized(w, "invalid authorization header format")
			return
		}

		// Verify token
		claims, err := m.verifier.VerifyToken(r.Context(), token)
		if err != nil {
			// Try as access token via userinfo
			claims, err = m.verifier.VerifyAccessToken(r.Context(), token)
			if err != nil {
				m.unauthorized(w, "invalid token")
				return
			}
		}

		// Check expiry
		if claims.IsExpired(m.now()) {
			m.unauthorized(w, "token expired")
			return
		}

		if len(m.requiredRoles) > 0 && !claims.HasAnyRole(m.requiredRoles...) {
			m.forbidden(w, "insufficient permissions")
			return
		}

		// Add claims to context
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) protects(r *http.Request) bool {
	if !m.enabled || m.verifier == nil {
		return false
	}
	if m.publicPaths[r.URL.Path] {
		return false
	}
	if m.prefix != "" && !strings.HasPrefix(r.URL.Path, m.prefix) {
		return false
	}
	if m.mutationsOnly {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return false
		}
	}
	return true
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="mentatlab"`)
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func (m *Middleware) forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, "forbidden", message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// RateLimiter provides per-client-IP rate limiting. Limiters idle for longer
// than the idle TTL are evicted.
type RateLimiter struct {
	rps     float64
	burst   int
	idleTTL time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-IP rate limiter.
// rps is requests per second, burst is the maximum burst size.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		rps:      rps,
		burst:    burst,
		idleTTL:  10 * time.Minute,
		logger:   logger,
		limiters: make(map[string]*clientLimiter),
		stop:     make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanupLoop(time.Minute)

	return rl
}

// Allow reports whether a request from ip may proceed now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
		rl.limiters[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > rl.idleTTL {
			delete(rl.limiters, ip)
		}
	}
}

// Handler returns the per-IP rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if !rl.Allow(ip) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			rl.logger.Warn("rate limit exceeded", slog.String("ip", ip))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the originating client address of r.
func ClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (from load balancer/proxy)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// Take the first IP (original client)
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
