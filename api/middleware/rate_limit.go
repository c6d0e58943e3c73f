package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/paysettle-backend/api/responses"
	"github.com/angelmondragon/paysettle-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// StatusRateLimit caps how often one user may poll payment status within a
// fixed window. Redis outages fail open; the status read is side-effect free
// apart from lazy expiry.
func StatusRateLimit(limiter rateLimiter, cfg config.RateLimitConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	window := cfg.StatusWindow
	if window <= 0 {
		window = time.Minute
	}
	limit := int64(cfg.StatusLimit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromContext(r.Context())
			if limiter == nil || limit <= 0 || userID == uuid.Nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, _, err := limiter.FixedWindowAllow(r.Context(), "payment-status:"+userID.String(), limit, window)
			if err != nil {
				logError(r.Context(), logg, "rate limit check failed", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many status requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
