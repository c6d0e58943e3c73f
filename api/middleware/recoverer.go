package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/paysettle-backend/api/responses"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

// Recoverer answers a panicking handler with the internal error envelope.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				// net/http uses this sentinel to abort the connection silently.
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				cause, ok := v.(error)
				if !ok {
					cause = fmt.Errorf("%v", v)
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, cause, "handler panicked").WithDetails(map[string]any{"step": "http.recover"}))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
