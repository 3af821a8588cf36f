package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fekuna/omnipos-fiscal-service/internal/reconcile"
	"github.com/fekuna/omnipos-fiscal-service/pkg/cache"
	"github.com/spf13/cobra"
)

type ReconcileOptions struct {
	*RootOptions
	Once bool
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fiscalize pending invoices",
		Long: `Runs the reconciliation loop without the HTTP API.

Example:
  fiscal reconcile --once
  fiscal reconcile`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.loadConfig()
			appLogger := newLogger(cfg)
			defer appLogger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appLogger)
			if err != nil {
				return err
			}
			defer a.Close()

			if !opts.Once {
				return a.loop.Start(ctx)
			}
			st, err := a.loop.RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single pass and print the resulting status")

	return cmd
}

// NewStatusCommand prints the status last published by a running service.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last reconciliation status published to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rootOpts.loadConfig()
			if !cfg.Redis.Enabled {
				return fmt.Errorf("status is only shared through redis; set REDIS_ENABLED=true")
			}
			rc, err := cache.NewRedisClient(&cache.Config{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				return err
			}
			defer rc.Close()

			var st reconcile.Status
			if err := rc.GetJSON(cmd.Context(), reconcile.StatusCacheKey, &st); err != nil {
				if errors.Is(err, cache.ErrCacheMiss) {
					return fmt.Errorf("no reconciliation status published yet")
				}
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
