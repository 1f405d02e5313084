package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/waresync/waresync/internal/config"
	"github.com/waresync/waresync/internal/store"
)

// migrateCmd applies pending database migrations without starting the
// server. The start command also runs migrations; this exists for
// deploy pipelines that migrate separately.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply any pending database migrations, including the inventory table
and the trigger that publishes change notifications.

Examples:
  waresync migrate
  WARESYNC_DATABASE_URL=postgres://... waresync migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		setupLogging(cfg)

		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return err
		}

		log.Info().Str("path", cfg.Database.MigrationsPath).Msg("migrations applied")
		return nil
	},
}
