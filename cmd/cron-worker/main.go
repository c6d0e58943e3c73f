package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/paysettle-backend/internal/cron"
	"github.com/angelmondragon/paysettle-backend/internal/webhooks"
	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db"
	"github.com/angelmondragon/paysettle-backend/pkg/instance"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
	"github.com/angelmondragon/paysettle-backend/pkg/metrics"
	"github.com/angelmondragon/paysettle-backend/pkg/migrate"
	"github.com/angelmondragon/paysettle-backend/pkg/outbox"
	"github.com/angelmondragon/paysettle-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.GetID(),
		"every":       cfg.Cron.Interval.String(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobs, err := retentionJobs(cfg.Cron, logg, dbClient)
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	scheduler, err := cron.NewScheduler(logg, lock, jobs, cron.Options{
		Every:      cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
		Recorder:   metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "cron worker starting")
	return scheduler.Run(ctx)
}

func retentionJobs(cfg config.CronConfig, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}
	webhookJob, err := cron.NewWebhookEventRetentionJob(cron.WebhookEventRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: webhooks.NewRepository(dbClient.DB()),
		Retention:  cfg.WebhookEventRetention,
	})
	if err != nil {
		return nil, err
	}
	return []cron.Job{outboxJob, webhookJob}, nil
}

// lockName scopes the lease per environment so staging and prod workers
// sharing a Redis do not starve each other.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceKind + ":" + env
}
