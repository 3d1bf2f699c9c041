package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret, issuer string, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuer,
		"sub": "ops@example.com",
		"exp": time.Now().Add(expiry).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestVerifier_AcceptsValidToken(t *testing.T) {
	v := NewVerifier(testSecret, "retail-middleware")
	claims, err := v.ValidateToken(signToken(t, testSecret, "retail-middleware", time.Hour))
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims["sub"] != "ops@example.com" {
		t.Errorf("unexpected subject claim: %v", claims["sub"])
	}
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	v := NewVerifier(testSecret, "")
	if _, err := v.ValidateToken(signToken(t, "other-secret", "", time.Hour)); err == nil {
		t.Error("expected token signed with a different secret to be rejected")
	}
}

func TestVerifier_RejectsWrongIssuer(t *testing.T) {
	v := NewVerifier(testSecret, "retail-middleware")
	if _, err := v.ValidateToken(signToken(t, testSecret, "someone-else", time.Hour)); err == nil {
		t.Error("expected wrong issuer to be rejected")
	}
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret, "")
	if _, err := v.ValidateToken(signToken(t, testSecret, "", -time.Minute)); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestMiddleware_PassThroughWhenDisabled(t *testing.T) {
	handler := Middleware(NewVerifier("", ""), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected pass-through with no secret configured, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsMissingAndInvalidTokens(t *testing.T) {
	handler := Middleware(NewVerifier(testSecret, ""), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run for unauthorized requests")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a garbage token, got %d", rec.Code)
	}
}

func TestMiddleware_InjectsSubjectIntoContext(t *testing.T) {
	var subject string
	handler := Middleware(NewVerifier(testSecret, ""), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = SubjectFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "", time.Hour))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if subject != "ops@example.com" {
		t.Errorf("expected subject from token claims, got %q", subject)
	}
}
