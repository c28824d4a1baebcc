package middleware

import (
	"net/http"

	"finna-payment/internal/auth"
	"finna-payment/internal/logger"
	"finna-payment/internal/utils"

	"go.uber.org/zap"
)

// RequireAuth rejects requests without a valid patron token and stores the
// patron identity in the request context.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.ParseIdentity(auth.ExtractAccessToken(r), secret)
			if err != nil {
				logger.FromCtx(r.Context()).Warn("Unauthorized request",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(utils.SetIdentity(r.Context(), id)))
		})
	}
}
