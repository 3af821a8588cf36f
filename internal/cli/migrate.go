package cli

import (
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rootOpts.loadConfig()
			appLogger := newLogger(cfg)
			defer appLogger.Sync()

			if err := database.Migrate(databaseConfig(cfg)); err != nil {
				appLogger.Error("Migration failed", zap.Error(err))
				return err
			}
			appLogger.Info("Database schema is up to date", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
