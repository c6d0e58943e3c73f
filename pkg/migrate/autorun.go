package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/db"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot in dev when the
// auto-migrate flag is on. Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	// Close would close the shared *sql.DB, so the runner is left for GC.
	runner, err := NewRunner(sqlDB, Embedded(), logg)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "trigger", "dev-autorun")
	logg.Info(ctx, "applying schema migrations")
	return runner.Up(ctx)
}
