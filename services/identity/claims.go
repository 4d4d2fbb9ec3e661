package identitysvc

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
)

const signingMethod = "HS256"

// Claims are the claims of an identity provider access token.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"` // provider role ("authenticated"), not the academy role
}

// NewClaims returns the claims of an access token for `subject`, valid for `ttl` from now.
func NewClaims(issuer, subject, email string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   subject,
			Id:        uuid.NewString(),
			Audience:  "authenticated",
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: email,
		Role:  "authenticated",
	}
}

// SignToken generates a signed HS256 JWT string representing the Claims.
func SignToken(claims *Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(signingMethod), claims)
	ss, err := token.SignedString(secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// ParseToken verifies `token` with `secret` and returns its claims.
// Without a secret the signature is not checked, but the token must still be well-formed and unexpired.
// Every failure is reported as core.ErrUnauthorized.
func ParseToken(token string, secret []byte) (*Claims, error) {
	claims := new(Claims)
	if len(secret) == 0 {
		if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
			return nil, core.ErrUnauthorized
		}
		if err := claims.Valid(); err != nil {
			return nil, core.ErrUnauthorized
		}
		return claims, nil
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethod {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, core.ErrUnauthorized
	}
	return claims, nil
}

// ExpiresAt returns the expiry of `token` (UTC), or the zero time if it cannot be read.
func ExpiresAt(token string) time.Time {
	claims := new(Claims)
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil || claims.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(claims.ExpiresAt, 0).UTC()
}
