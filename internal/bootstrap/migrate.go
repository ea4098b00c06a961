package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskfabric/backbone/internal/config"
	"github.com/taskfabric/backbone/migrations"
	"github.com/taskfabric/backbone/pkg/database"
)

// RunMigrate applies all pending schema migrations and returns, for use
// by both the `migrate` cobra subcommand and any deployment init step.
func RunMigrate(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dbConfig := database.DefaultPostgresConfig(cfg.DatabaseURL)
	db, err := database.NewPool(ctx, dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.Pool)
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}
