package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/auth"
)

// TokenValidator validates management bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type accountCtx struct{}

// AccountFromContext returns the authenticated account id.
func AccountFromContext(ctx context.Context) string {
	id, _ := ctx.Value(accountCtx{}).(string)
	return id
}

// BearerAuth requires a valid "Authorization: Bearer <jwt>" header and puts
// the token's account id on the request context.
func BearerAuth(tokens TokenValidator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
				return
			}

			claims, err := tokens.Validate(raw)
			if err != nil {
				logger.Debug().Err(err).Msg("bearer token rejected")
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), accountCtx{}, claims.AccountID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
