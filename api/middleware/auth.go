package middleware

import (
	"net/http"
	"strings"

	"github.com/bukkus/bukkus-backend/api/responses"
	pkgAuth "github.com/bukkus/bukkus-backend/pkg/auth"
	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/enums"
	pkgerrors "github.com/bukkus/bukkus-backend/pkg/errors"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

var errMissingCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")

// Auth admits requests carrying a valid access token and puts the caller's
// account and role on the context. Account ids are trusted as the identity
// provider issued them.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, errMissingCredentials)
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithAccount(r.Context(), claims.AccountID, claims.Role)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithAccountID(ctx, claims.AccountID.String()), string(claims.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, and a bare token.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, found := strings.Cut(raw, " "); found && strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(rest)
	}
	return raw, raw != ""
}

// RequireRole refuses callers whose token does not carry role. It must run
// after Auth.
func RequireRole(role enums.AccountRole, logg *logger.Logger) func(http.Handler) http.Handler {
	refusal := func() error {
		return pkgerrors.New(pkgerrors.CodeNotAuthorized, "role required").
			WithDetails(map[string]any{"role": string(role)})
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) == role {
				next.ServeHTTP(w, r)
				return
			}
			responses.WriteError(r.Context(), logg, w, refusal())
		})
	}
}
