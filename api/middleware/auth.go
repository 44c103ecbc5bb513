package middleware

import (
	"net/http"
	"strings"

	"github.com/bazaarly/bazaarly-backend/api/responses"
	pkgAuth "github.com/bazaarly/bazaarly-backend/pkg/auth"
	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// acting party (user or vendor).
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

			ctx := WithActor(r.Context(), claims.ActorID, claims.ActorKind)
			if logg != nil {
				fields := map[string]any{
					"actor_kind": claims.ActorKind.String(),
				}
				if claims.ActorKind == enums.WalletOwnerKindVendor {
					fields["vendor_id"] = claims.ActorID.String()
				} else {
					fields["user_id"] = claims.ActorID.String()
				}
				ctx = logg.WithFields(ctx, fields)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireKind rejects authenticated requests whose actor kind does not
// match. Vendor-only surfaces (ads, vendor orders) sit behind this.
func RequireKind(kind enums.WalletOwnerKind, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorKindFromContext(r.Context()) != kind {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "wrong account kind for this resource"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
