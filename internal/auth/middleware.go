package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/web"
)

// TokenParser verifies a bearer token and returns the user id it carries.
type TokenParser interface {
	Parse(token string) (int64, error)
}

type ctxKey struct{}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// UserIDFrom returns the id stored by RequireBearer.
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKey{}).(int64)
	return id, ok
}

// RequireBearer rejects requests without a valid "Authorization: Bearer" token.
func RequireBearer(parser TokenParser, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				web.WriteError(w, logger, apperr.E("auth.RequireBearer", apperr.Unauthorized))
				return
			}
			id, err := parser.Parse(raw)
			if err != nil {
				web.WriteError(w, logger, apperr.Wrap("auth.RequireBearer", apperr.Unauthorized, err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
