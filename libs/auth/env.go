package auth

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
)

// VerifierFromEnv reads JWT_SECRET, JWKS_URL and JWKS_CACHE_TTL. At least one
// of the secret or the JWKS URL must be set.
func VerifierFromEnv() (*Verifier, error) {
	secret := config.String("JWT_SECRET", "")
	jwksURL := config.String("JWKS_URL", "")
	if secret == "" && jwksURL == "" {
		return nil, errors.New("JWT_SECRET or JWKS_URL is required")
	}
	var jwks *JWKSClient
	if jwksURL != "" {
		ttl, err := config.Duration("JWKS_CACHE_TTL", 5*time.Minute)
		if err != nil {
			return nil, err
		}
		jwks = NewJWKSClient(jwksURL, ttl)
	}
	return NewVerifier(secret, jwks), nil
}
