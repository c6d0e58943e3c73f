package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/paysettle-backend/api/controllers"
	paymentcontrollers "github.com/angelmondragon/paysettle-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/paysettle-backend/api/controllers/webhooks"
	"github.com/angelmondragon/paysettle-backend/api/middleware"
	"github.com/angelmondragon/paysettle-backend/internal/payments"
	"github.com/angelmondragon/paysettle-backend/internal/watcher"
	"github.com/angelmondragon/paysettle-backend/internal/webhooks"
	"github.com/angelmondragon/paysettle-backend/pkg/auth"
	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/redis"
)

// Dependencies is everything the HTTP surface needs. Redis and Metrics may
// be nil; idempotency, rate limiting and /metrics are then skipped.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Tokens   *auth.Keys
	DB       db.Pinger
	Redis    *redis.Client
	Payments payments.Service
	Watcher  *watcher.Watcher
	Webhooks *webhooks.Service
	Metrics  http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	pingers := map[string]controllers.Pinger{}
	if deps.DB != nil {
		pingers["db"] = deps.DB
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, pingers, logg))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	webhookOpts := webhookcontrollers.Options{
		GenericSecret:         cfg.Webhook.Secret,
		MidtransServerKey:     cfg.Midtrans.ServerKey,
		SquareSignatureKey:    cfg.Square.WebhookSecret,
		SquareNotificationURL: cfg.Square.NotificationURL,
		MaxBodyBytes:          cfg.Webhook.MaxBodyBytes,
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.GenericWebhook(deps.Webhooks, webhookOpts, logg))
		r.Post("/midtrans", webhookcontrollers.MidtransWebhook(deps.Webhooks, webhookOpts, logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.Webhooks, webhookOpts, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Tokens, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Post("/", paymentcontrollers.CreatePayment(deps.Payments, logg))
		r.Get("/", paymentcontrollers.ListPayments(deps.Payments, logg))
		r.Route("/{paymentId}", func(r chi.Router) {
			r.Get("/", paymentcontrollers.GetPayment(deps.Payments, logg))
			r.Post("/cancel", paymentcontrollers.CancelPayment(deps.Payments, logg))
			r.Get("/events", paymentcontrollers.PaymentEvents(deps.Payments, deps.Watcher, logg))

			status := r.With()
			if deps.Redis != nil {
				status = r.With(middleware.StatusRateLimit(deps.Redis, cfg.RateLimit, logg))
			}
			status.Get("/status", paymentcontrollers.GetPaymentStatus(deps.Payments, logg))
		})
	})

	return r
}
