package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/paysettle-backend/api/responses"
	"github.com/angelmondragon/paysettle-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

type tokenVerifier interface {
	Verify(raw string) (auth.Payer, error)
}

// Auth rejects requests without a valid payer token and binds the payer to
// the request context and logger.
func Auth(tokens tokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			payer, err := tokens.Verify(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithPayer(r.Context(), payer)
			if logg != nil {
				ctx = logg.WithUserID(ctx, payer.UserID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken prefers the Authorization header. EventSource clients cannot
// set headers, so ?access_token= is accepted as a fallback.
func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	if scheme != "" && !found {
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
