package middleware

import (
	"net/http"
	"strings"

	"github.com/kaoriishige/adtown-ishige-sub000/api/responses"
	pkgAuth "github.com/kaoriishige/adtown-ishige-sub000/pkg/auth"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/config"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/enums"
	pkgerrors "github.com/kaoriishige/adtown-ishige-sub000/pkg/errors"
	"github.com/kaoriishige/adtown-ishige-sub000/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if claims.AccountID == "" && claims.Role != enums.AccountRoleAdmin {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing account id"))
				return
			}

			ctx := WithAccountID(r.Context(), claims.AccountID)
			ctx = WithRole(ctx, string(claims.Role))

			if logg != nil {
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if claims.AccountID != "" {
					ctx = logg.WithAccountID(ctx, claims.AccountID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
