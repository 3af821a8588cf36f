package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	catalogH "github.com/fekuna/omnipos-fiscal-service/internal/catalog/handler"
	inventoryH "github.com/fekuna/omnipos-fiscal-service/internal/inventory/handler"
	invoiceH "github.com/fekuna/omnipos-fiscal-service/internal/invoice/handler"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice/listener"
	syncH "github.com/fekuna/omnipos-fiscal-service/internal/reconcile/handler"
	settingsH "github.com/fekuna/omnipos-fiscal-service/internal/settings/handler"
	"github.com/fekuna/omnipos-fiscal-service/pkg/broker"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the reconciliation loop and the sale listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), rootOpts)
		},
	}
}

func serve(parent context.Context, rootOpts *RootOptions) error {
	cfg := rootOpts.loadConfig()
	appLogger := newLogger(cfg)
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Could not start fiscal service", zap.Error(err))
		return err
	}
	defer a.Close()

	router := newRouter(a)
	srv := &http.Server{
		Addr:              cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.loop.Start(gctx)
	})

	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.SalesTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer consumer.Close()
		appLogger.Info("Connected to Kafka consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.SalesTopic))

		saleListener := listener.NewSaleListener(consumer, a.invoices, appLogger)
		g.Go(func() error {
			saleListener.Start(gctx)
			return nil
		})
	}

	err = g.Wait()
	appLogger.Info("Server stopped")
	return err
}

func newRouter(a *app) *gin.Engine {
	if !isDevelopment(a.cfg) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a))

	r.GET("/health", func(c *gin.Context) {
		if err := a.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "fiscal": a.loop.Last()})
	})

	v1 := r.Group("/api/v1")
	catalogH.NewCatalogHandler(a.catalog, a.logger).Register(v1)
	inventoryH.NewInventoryHandler(a.inventory, a.logger).Register(v1)
	invoiceH.NewInvoiceHandler(a.invoices, a.logger).Register(v1)
	settingsH.NewSettingsHandler(a.settings, a.logger).Register(v1)
	syncH.NewSyncHandler(a.loop, a.logger).Register(v1)

	return r
}

func requestLogger(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
