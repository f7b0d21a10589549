package middleware

import (
	"net/http"

	"orderline-be/internal/auth"
	"orderline-be/internal/logger"

	"go.uber.org/zap"
)

// Authenticate attaches the caller's principal when the request carries a
// valid token. It never rejects: routes that require a principal verify it
// themselves, and an invalid token on a public route is treated as anonymous.
func Authenticate(gate auth.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractAccessToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := gate.Verify(r.Context(), token)
			if err != nil {
				logger.FromCtx(r.Context()).Debug("ignoring invalid token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}
