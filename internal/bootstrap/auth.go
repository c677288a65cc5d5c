package bootstrap

import (
	"context"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/auth"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
)

// NewVerifier builds the API token verifier and starts its key refresh.  It
// returns nil when auth is disabled.
func NewVerifier(ctx context.Context, cfg config.AuthConfig, logger logging.Logger) (*auth.TokenVerifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	v, err := auth.NewVerifier(ctx, auth.Config{
		Issuer:              cfg.Issuer,
		Audience:            cfg.Audience,
		JWKSURL:             cfg.JWKSURL,
		JWKSRefreshInterval: cfg.JWKSRefreshInterval,
		HMACSecret:          cfg.HMACSecret,
		RolesClaim:          cfg.RolesClaim,
	}, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := v.Run(ctx); err != nil {
			logger.Error("jwks refresher stopped", logging.Err(err))
		}
	}()
	keySource := "hmac"
	if cfg.JWKSURL != "" {
		keySource = "jwks"
	}
	logger.Info("api authentication enabled", logging.String("key_source", keySource))
	return v, nil
}
