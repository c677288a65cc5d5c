// Package auth verifies bearer tokens presented to the HTTP API and maps the
// caller's roles onto API permissions.
//
// Tokens are JWTs signed either with a shared HS256 secret or with an RSA key
// published on a JWKS endpoint (for example a Keycloak realm's
// /protocol/openid-connect/certs).
package auth

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// Claims is the subset of token claims the API acts on.
type Claims struct {
	Subject   string    `json:"sub"`
	Roles     []string  `json:"roles"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}

// Config selects the key source and the claims that must match.
type Config struct {
	Issuer   string
	Audience string

	JWKSURL             string
	JWKSRefreshInterval time.Duration
	HMACSecret          string

	// RolesClaim is a claim name or a dotted path into nested claims,
	// e.g. "realm_access.roles".
	RolesClaim string

	Leeway time.Duration
}

var (
	ErrMissingToken   = errors.New(errors.ErrCodeUnauthorized, "missing bearer token")
	ErrTokenMalformed = errors.New(errors.ErrCodeUnauthorized, "malformed token")
	ErrTokenExpired   = errors.New(errors.ErrCodeUnauthorized, "token expired")
	ErrTokenInvalid   = errors.New(errors.ErrCodeUnauthorized, "invalid token")
)

// TokenVerifier is the JWT implementation of Verifier.
type TokenVerifier struct {
	cfg    Config
	parser *jwt.Parser
	keys   jwt.Keyfunc
	jwks   *jwksCache
	logger logging.Logger
}

// Option configures a TokenVerifier.
type Option func(*TokenVerifier)

// WithJWKSFetcher replaces the HTTP fetcher of the JWKS cache.
func WithJWKSFetcher(f Fetcher) Option {
	return func(v *TokenVerifier) {
		if v.jwks != nil && f != nil {
			v.jwks.fetch = f
		}
	}
}

// NewVerifier builds a verifier for cfg.  With a JWKS URL the key set is
// fetched once before returning; Run keeps it fresh.
func NewVerifier(ctx context.Context, cfg Config, logger logging.Logger, opts ...Option) (*TokenVerifier, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if (cfg.JWKSURL == "") == (cfg.HMACSecret == "") {
		return nil, errors.New(errors.ErrCodeValidation, "auth: exactly one of jwks_url and hmac_secret is required")
	}
	if cfg.RolesClaim == "" {
		cfg.RolesClaim = "roles"
	}
	if cfg.JWKSRefreshInterval <= 0 {
		cfg.JWKSRefreshInterval = 5 * time.Minute
	}

	parserOpts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithLeeway(cfg.Leeway)}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}

	v := &TokenVerifier{cfg: cfg, logger: logger.Named("auth")}
	if cfg.HMACSecret != "" {
		secret := []byte(cfg.HMACSecret)
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"HS256"}))
		v.keys = func(*jwt.Token) (interface{}, error) { return secret, nil }
	} else {
		v.jwks = newJWKSCache(cfg.JWKSURL, v.logger)
		parserOpts = append(parserOpts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
		v.keys = v.jwksKey
	}
	for _, opt := range opts {
		opt(v)
	}
	v.parser = jwt.NewParser(parserOpts...)

	if v.jwks != nil {
		if err := v.jwks.refresh(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeExternalService, "auth: failed to fetch JWKS")
		}
	}
	return v, nil
}

// Run refreshes the JWKS key set every JWKSRefreshInterval until ctx is done.
// It returns immediately for HMAC verifiers.
func (v *TokenVerifier) Run(ctx context.Context) error {
	if v.jwks == nil {
		return nil
	}
	ticker := time.NewTicker(v.cfg.JWKSRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := v.jwks.refresh(ctx); err != nil {
				v.logger.Warn("jwks refresh failed", logging.Err(err))
			}
		}
	}
}

func (v *TokenVerifier) jwksKey(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("token header has no kid")
	}
	return v.jwks.key(context.Background(), kid)
}

// Verify parses rawToken, checks signature, expiry, issuer and audience, and
// extracts the caller's roles.
func (v *TokenVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	if rawToken == "" {
		return nil, ErrMissingToken
	}
	mc := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(rawToken, mc, v.keys); err != nil {
		switch {
		case stdliberrors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		case stdliberrors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, ErrTokenInvalid.Message)
		}
	}

	claims := &Claims{Roles: rolesAt(mc, v.cfg.RolesClaim)}
	claims.Subject, _ = mc.GetSubject()
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if scope, ok := mc["scope"].(string); ok {
		claims.Scope = scope
	}
	return claims, nil
}

// rolesAt walks a dotted claim path and returns the string values found
// there.  A space separated string is accepted as well as a list.
func rolesAt(mc jwt.MapClaims, path string) []string {
	var cur interface{} = map[string]interface{}(mc)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[part]
	}
	switch val := cur.(type) {
	case []interface{}:
		roles := make([]string, 0, len(val))
		for _, r := range val {
			if s, ok := r.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
		return roles
	case []string:
		return val
	case string:
		return strings.Fields(val)
	}
	return nil
}
