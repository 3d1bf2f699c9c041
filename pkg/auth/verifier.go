// Package auth validates bearer tokens on the admin surface. Tokens are
// HMAC-signed JWTs sharing a secret with the operator tooling; when no
// secret is configured the surface is open and the middleware is a no-op.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates HS256 bearer tokens against a shared secret
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a verifier. An empty secret disables verification.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Enabled reports whether token verification is configured
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// ValidateToken validates a JWT token and returns the claims
func (v *Verifier) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	if v.issuer != "" {
		iss, ok := claims["iss"].(string)
		if !ok || iss != v.issuer {
			return nil, fmt.Errorf("invalid issuer")
		}
	}

	return claims, nil
}
