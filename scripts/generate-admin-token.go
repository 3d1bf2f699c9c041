//go:build ignore

// This script generates an HS256 admin token for the syncd API.
// Run with: go run scripts/generate-admin-token.go
//
// The secret must match admin.jwt_secret in config.yaml; the issuer must
// match admin.jwt_issuer when one is configured.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	secret := os.Getenv("SYNCD_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "SYNCD_JWT_SECRET is required")
		os.Exit(1)
	}

	subject := os.Getenv("SYNCD_JWT_SUBJECT")
	if subject == "" {
		subject = "ops"
	}
	issuer := os.Getenv("SYNCD_JWT_ISSUER")

	ttl := 24 * time.Hour
	if raw := os.Getenv("SYNCD_JWT_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid SYNCD_JWT_TTL %q: %v\n", raw, err)
			os.Exit(1)
		}
		ttl = parsed
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "\nsubject=%s ttl=%s\n", subject, ttl)
	fmt.Fprintln(os.Stderr, `use with: curl -H "Authorization: Bearer <token>" -X POST http://localhost:8080/api/v1/sync`)
}
