// Package auth provides optional OIDC bearer-token checks and per-client rate
// limiting for the analyst API.
package auth

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/tracing"
)

// Config selects the identity provider whose tokens may start runs.
type Config struct {
	// Issuer is the OIDC discovery URL, e.g. https://auth.example.com
	Issuer string

	ClientID string

	// Audience overrides ClientID as the expected "aud" claim
	Audience string
}

// Provider verifies bearer tokens against an OIDC issuer.
type Provider struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewProvider fetches the issuer's discovery document.
func NewProvider(ctx context.Context, cfg *Config) (*Provider, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("oidc config is required")
	case cfg.Issuer == "":
		return nil, errors.New("oidc issuer is required")
	case cfg.ClientID == "":
		return nil, errors.New("oidc client id is required")
	}

	ctx = oidc.ClientContext(ctx, &http.Client{Transport: tracing.Transport(http.DefaultTransport)})
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", cfg.Issuer, err)
	}

	return &Provider{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cmp.Or(cfg.Audience, cfg.ClientID)}),
	}, nil
}

// VerifyToken checks a JWT ID token and decodes its claims.
func (p *Provider) VerifyToken(ctx context.Context, raw string) (*Claims, error) {
	tok, err := p.verifier.Verify(ctx, bearer(raw))
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	var claims Claims
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	return &claims, nil
}

// VerifyAccessToken resolves an opaque access token through the userinfo
// endpoint. The result has no expiry.
func (p *Provider) VerifyAccessToken(ctx context.Context, raw string) (*Claims, error) {
	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer(raw)}))
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}

	claims := Claims{Subject: info.Subject, Email: info.Email}
	// userinfo may carry roles and groups as well
	_ = info.Claims(&claims)
	claims.Subject = info.Subject
	return &claims, nil
}

func bearer(raw string) string {
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return raw[7:]
	}
	return raw
}

// Claims is the caller identity attached to the request context. Times are
// Unix seconds.
type Claims struct {
	Subject string   `json:"sub"`
	Name    string   `json:"name,omitempty"`
	Email   string   `json:"email,omitempty"`
	Groups  []string `json:"groups,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Expiry  int64    `json:"exp,omitempty"`
}

// HasAnyRole reports whether one of roles appears in Roles or Groups.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(c.Roles, r) || slices.Contains(c.Groups, r) {
			return true
		}
	}
	return false
}

// IsExpired reports whether the token expired at or before now.
func (c *Claims) IsExpired(now time.Time) bool {
	return c.Expiry != 0 && now.Unix() >= c.Expiry
}
