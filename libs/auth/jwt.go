package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Roles known to the clinic. Tokens are issued elsewhere; these services only
// read the role claim.
const (
	RolePatient      = "patient"
	RoleDoctor       = "doctor"
	RoleReceptionist = "receptionist"
	RoleAdmin        = "admin"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret and, when a JWKS client
// is configured, RS256 tokens against the published keys.
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: []byte(secret), jwks: jwks}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, fmt.Errorf("%w: missing sub or role", ErrInvalidToken)
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.Alg() {
	case jwt.SigningMethodHS256.Alg():
		if len(v.secret) == 0 {
			return nil, errors.New("hs256 secret not configured")
		}
		return v.secret, nil
	case jwt.SigningMethodRS256.Alg():
		if v.jwks == nil {
			return nil, errors.New("rs256 tokens require a jwks url")
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("rs256 token without kid")
		}
		return v.jwks.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}

// SignHS256 issues a token for local tooling and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
