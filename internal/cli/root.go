package cli

import (
	"github.com/fekuna/omnipos-fiscal-service/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the fiscal service CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fiscal",
		Short: "Fiscal invoice synchronization service",
		Long: `Records vehicle sales locally, fiscalizes them with the tax authority and
keeps retrying invoices that could not be reported while offline.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading configuration")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewNextNumberCommand(opts))

	return cmd
}

// loadConfig reads the dotenv file if present, then the process environment.
func (o *RootOptions) loadConfig() *config.Config {
	_ = godotenv.Load(o.EnvFile)
	return config.LoadEnv()
}
