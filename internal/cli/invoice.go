package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewNextNumberCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next-number",
		Short: "Print the next invoice number for the active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rootOpts.loadConfig()
			appLogger := newLogger(cfg)
			defer appLogger.Sync()

			a, err := newApp(cmd.Context(), cfg, appLogger)
			if err != nil {
				return err
			}
			defer a.Close()

			number, err := a.invoices.GenerateNextInvoiceNumber(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), number)
			return err
		},
	}
}
