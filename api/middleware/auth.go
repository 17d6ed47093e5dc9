package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/retroquest/storefront-backend/api/responses"
	pkgAuth "github.com/retroquest/storefront-backend/pkg/auth"
	"github.com/retroquest/storefront-backend/pkg/config"
	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/logger"
)

// Auth requires a bearer access token and seeds the context with the caller.
// A misconfigured JWT section fails every request as INTERNAL_ERROR.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	keys, keysErr := pkgAuth.NewKeys(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keysErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, keysErr, "auth not configured"))
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := keys.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			userID := claims.UserID.String()
			ctx := WithRole(WithUserID(r.Context(), userID), claims.Role)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), string(claims.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <jwt>" in any case, or a bare token.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, found := strings.Cut(raw, " "); found && strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(rest)
	}
	return raw, raw != ""
}
