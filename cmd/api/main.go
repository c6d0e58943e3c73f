package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/paysettle-backend/api/routes"
	"github.com/angelmondragon/paysettle-backend/internal/ledger"
	"github.com/angelmondragon/paysettle-backend/internal/payments"
	"github.com/angelmondragon/paysettle-backend/internal/realtime"
	"github.com/angelmondragon/paysettle-backend/internal/reconciler"
	"github.com/angelmondragon/paysettle-backend/internal/settlement"
	"github.com/angelmondragon/paysettle-backend/internal/watcher"
	"github.com/angelmondragon/paysettle-backend/internal/webhooks"
	"github.com/angelmondragon/paysettle-backend/pkg/auth"
	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db"
	"github.com/angelmondragon/paysettle-backend/pkg/enums"
	"github.com/angelmondragon/paysettle-backend/pkg/idempotency"
	"github.com/angelmondragon/paysettle-backend/pkg/instance"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/metrics"
	"github.com/angelmondragon/paysettle-backend/pkg/midtrans"
	"github.com/angelmondragon/paysettle-backend/pkg/migrate"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox"
	"github.com/angelmondragon/paysettle-backend/pkg/redis"
	"github.com/angelmondragon/paysettle-backend/pkg/square"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewKeys(cfg.JWT)
	if err != nil {
		logg.Error(ctx, "invalid jwt configuration", err)
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	gateway, err := newGateway(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to create payment gateway", err)
		os.Exit(1)
	}

	hub, err := realtime.NewHub(redisClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create realtime hub", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	paymentsRepo := payments.NewRepository(conn)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	notifier := payments.NewNotifier(hub, paymentMetrics, logg)

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:     paymentsRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Gateway:  gateway,
		Notifier: notifier,
		Metrics:  paymentMetrics,
		Config:   cfg.Payments,
		Timeout:  cfg.Gateway.Timeout,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	book, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		logg.Error(ctx, "failed to create ledger service", err)
		os.Exit(1)
	}
	engine, err := settlement.NewEngine(settlement.EngineParams{
		Repo:         settlement.NewRepository(conn),
		Ledger:       book,
		FeeRate:      cfg.Settlement.FeeRate(),
		PlanDuration: cfg.Settlement.PlanDuration,
		DefaultPlan:  enums.SubscriptionPlan(cfg.Settlement.DefaultPlan),
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create settlement engine", err)
		os.Exit(1)
	}

	rec, err := reconciler.New(reconciler.Params{
		Repo:     paymentsRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Settler:  engine,
		Expirer:  payments.NewExpirer(paymentsRepo, dbClient, outboxService, notifier),
		Notifier: notifier,
		Metrics:  paymentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create reconciler", err)
		os.Exit(1)
	}

	statusWatcher, err := watcher.New(rec, hub, cfg.Watcher, logg)
	if err != nil {
		logg.Error(ctx, "failed to create watcher", err)
		os.Exit(1)
	}

	guard, err := idempotency.NewGuard(redisClient, cfg.Webhook.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create webhook guard", err)
		os.Exit(1)
	}
	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Repo:      webhooks.NewRepository(conn),
		Guard:     guard,
		Confirmer: rec,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"gateway":  gateway.Driver(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:   cfg,
			Logger:   logg,
			Tokens:   tokens,
			DB:       dbClient,
			Redis:    redisClient,
			Payments: paymentsService,
			Watcher:  statusWatcher,
			Webhooks: webhookService,
			Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		// open event streams hold requests; give them a bounded window
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
	}
}

func newGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.GatewayClient, error) {
	switch cfg.Gateway.NormalizedDriver() {
	case config.GatewayDriverSquare:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		return payments.NewSquareGateway(client), nil
	default:
		client, err := midtrans.NewClient(cfg.Midtrans, logg)
		if err != nil {
			return nil, err
		}
		return payments.NewMidtransGateway(client), nil
	}
}
