package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/goMFA/jwt"
)

// AccessParser verifies an access token minted for a completed login.
// *jwt.Manager implements it.
type AccessParser interface {
	ParseAccess(token string) (*jwt.AccessClaims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// RequireAccess admits requests carrying any valid access token.
func RequireAccess(parser AccessParser) func(http.Handler) http.Handler {
	return guard(parser, false)
}

// RequireSecondFactor admits only tokens minted after an OTP check. Tokens
// from logins that completed on the first factor alone get 403.
func RequireSecondFactor(parser AccessParser) func(http.Handler) http.Handler {
	return guard(parser, true)
}

func guard(parser AccessParser, secondFactor bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := parser.ParseAccess(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if secondFactor && !claims.SecondFactor() {
				http.Error(w, "second factor required", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
