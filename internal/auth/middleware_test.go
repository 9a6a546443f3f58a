package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	tokens map[string]*Claims
}

func (f *fakeVerifier) VerifyToken(ctx context.Context, raw string) (*Claims, error) {
	if c, ok := f.tokens[raw]; ok {
		return c, nil
	}
	return nil, errors.New("bad jwt")
}

func (f *fakeVerifier) VerifyAccessToken(ctx context.Context, raw string) (*Claims, error) {
	if raw == "opaque" {
		return &Claims{Subject: "svc"}, nil
	}
	return nil, errors.New("bad access token")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := GetClaims(r.Context()); c != nil {
			w.Header().Set("X-Subject", c.Subject)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	verifier := &fakeVerifier{tokens: map[string]*Claims{
		"good":    {Subject: "alice", Roles: []string{"analyst"}, Expiry: now.Unix() + 60},
		"expired": {Subject: "bob", Roles: []string{"analyst"}, Expiry: now.Unix() - 1},
		"norole":  {Subject: "carol"},
	}}

	m := NewMiddleware(verifier, &MiddlewareConfig{
		Enabled:         true,
		ProtectedPrefix: "/api/crew/",
		MutationsOnly:   true,
		RequiredRoles:   []string{"analyst"},
	})
	m.now = func() time.Time { return now }
	h := m.Handler(okHandler())

	tests := []struct {
		name    string
		method  string
		path    string
		auth    string
		want    int
		subject string
	}{
		{"read is public", http.MethodGet, "/api/crew/runs", "", http.StatusOK, ""},
		{"outside prefix", http.MethodPost, "/api/warmup", "", http.StatusOK, ""},
		{"health always public", http.MethodPost, "/health", "", http.StatusOK, ""},
		{"missing header", http.MethodPost, "/api/crew/run", "", http.StatusUnauthorized, ""},
		{"not bearer", http.MethodPost, "/api/crew/run", "Basic abc", http.StatusUnauthorized, ""},
		{"invalid token", http.MethodPost, "/api/crew/run", "Bearer nope", http.StatusUnauthorized, ""},
		{"expired", http.MethodPost, "/api/crew/run", "Bearer expired", http.StatusUnauthorized, ""},
		{"missing role", http.MethodPost, "/api/crew/run", "Bearer norole", http.StatusForbidden, ""},
		{"valid", http.MethodPost, "/api/crew/run", "Bearer good", http.StatusOK, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.subject, rec.Header().Get("X-Subject"))
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}

func TestMiddleware_AccessTokenFallback(t *testing.T) {
	m := NewMiddleware(&fakeVerifier{}, &MiddlewareConfig{Enabled: true})
	req := httptest.NewRequest(http.MethodPost, "/api/crew/run", nil)
	req.Header.Set("Authorization", "Bearer opaque")
	rec := httptest.NewRecorder()

	m.Handler(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "svc", rec.Header().Get("X-Subject"))
}

func TestMiddleware_Disabled(t *testing.T) {
	m := NewMiddleware(nil, &MiddlewareConfig{Enabled: true})
	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/crew/run", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClaims_IsExpired(t *testing.T) {
	now := time.Unix(100, 0)
	assert.False(t, (&Claims{}).IsExpired(now))
	assert.False(t, (&Claims{Expiry: 101}).IsExpired(now))
	assert.True(t, (&Claims{Expiry: 100}).IsExpired(now))
}

func TestClaims_HasAnyRole(t *testing.T) {
	c := &Claims{Roles: []string{"viewer"}, Groups: []string{"analysts"}}
	assert.True(t, c.HasAnyRole("admin", "viewer"))
	assert.True(t, c.HasAnyRole("analysts"))
	assert.False(t, c.HasAnyRole("admin"))
	assert.False(t, c.HasAnyRole())
}

func TestBearer(t *testing.T) {
	assert.Equal(t, "abc", bearer("Bearer abc"))
	assert.Equal(t, "abc", bearer("bearer abc"))
	assert.Equal(t, "abc", bearer("abc"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, nil)
	defer rl.Close()
	h := rl.Handler(okHandler())

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/crew/run", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("2.2.2.2"), "limits are per client")
}

func TestRateLimiter_ConcurrentAndEviction(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, nil)
	defer rl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rl.Allow("3.3.3.3")
		}()
	}
	wg.Wait()

	rl.evictIdle(time.Now().Add(time.Hour))
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.RemoteAddr = "[2001:db8::1]:80"
	assert.Equal(t, "2001:db8::1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", ClientIP(req))
}
