package middleware

import (
	"fmt"
	"net/http"

	"orderline-be/internal/apperror"
	"orderline-be/internal/logger"
	"orderline-be/internal/transport"

	"go.uber.org/zap"
)

// Recover turns a handler panic into a 500 error envelope.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}

			logger.FromCtx(r.Context()).Error("panic recovered",
				zap.Any("panic", v),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Stack("stack"),
			)
			transport.WriteError(w, r, apperror.Internal(fmt.Errorf("panic: %v", v)))
		}()

		next.ServeHTTP(w, r)
	})
}
