package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware returns a chi-compatible middleware enforcing bearer-token
// auth on mutating admin routes. With verification disabled it passes every
// request through untouched.
func Middleware(verifier *Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			claims, err := verifier.ValidateToken(tokenString)
			if err != nil {
				logger.Warn("Rejected admin request",
					zap.String("path", r.URL.Path), zap.Error(err))
				unauthorized(w, "invalid token")
				return
			}

			if subject, ok := claims["sub"].(string); ok {
				r = r.WithContext(WithSubject(r.Context(), subject))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
