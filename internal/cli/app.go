package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/config"
	"github.com/fekuna/omnipos-fiscal-service/internal/catalog"
	catalogrepo "github.com/fekuna/omnipos-fiscal-service/internal/catalog/repository"
	catalogusecase "github.com/fekuna/omnipos-fiscal-service/internal/catalog/usecase"
	customerrepo "github.com/fekuna/omnipos-fiscal-service/internal/customer/repository"
	customerusecase "github.com/fekuna/omnipos-fiscal-service/internal/customer/usecase"
	"github.com/fekuna/omnipos-fiscal-service/internal/fiscal"
	"github.com/fekuna/omnipos-fiscal-service/internal/inventory"
	inventoryrepo "github.com/fekuna/omnipos-fiscal-service/internal/inventory/repository"
	inventoryusecase "github.com/fekuna/omnipos-fiscal-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	invoicepublisher "github.com/fekuna/omnipos-fiscal-service/internal/invoice/publisher"
	invoicerepo "github.com/fekuna/omnipos-fiscal-service/internal/invoice/repository"
	invoiceusecase "github.com/fekuna/omnipos-fiscal-service/internal/invoice/usecase"
	"github.com/fekuna/omnipos-fiscal-service/internal/reconcile"
	"github.com/fekuna/omnipos-fiscal-service/internal/settings"
	settingsrepo "github.com/fekuna/omnipos-fiscal-service/internal/settings/repository"
	"github.com/fekuna/omnipos-fiscal-service/pkg/broker"
	"github.com/fekuna/omnipos-fiscal-service/pkg/cache"
	"github.com/fekuna/omnipos-fiscal-service/pkg/database"
	"github.com/fekuna/omnipos-fiscal-service/pkg/logger"
	"github.com/fekuna/omnipos-fiscal-service/pkg/search"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// app holds the wired service. Optional infrastructure stays nil when disabled.
type app struct {
	cfg    *config.Config
	logger logger.ZapLogger

	db       *sqlx.DB
	redis    *cache.RedisClient
	producer *broker.KafkaProducer

	settings  *settings.Provider
	catalog   catalog.UseCase
	inventory inventory.UseCase
	invoices  invoice.UseCase
	loop      *reconcile.Loop

	closers []func() error
}

func newLogger(cfg *config.Config) logger.ZapLogger {
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if isDevelopment(cfg) {
		logConfig.IsDevelopment = true
	}
	return logger.NewZapLogger(logConfig)
}

func isDevelopment(cfg *config.Config) bool {
	return cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev"
}

func databaseConfig(cfg *config.Config) *database.Config {
	return &database.Config{
		Driver:          cfg.Database.Driver,
		SQLitePath:      cfg.Database.SQLitePath,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second,
	}
}

func newApp(ctx context.Context, cfg *config.Config, log logger.ZapLogger) (*app, error) {
	a := &app{cfg: cfg, logger: log}

	dbCfg := databaseConfig(cfg)
	if err := database.Migrate(dbCfg); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	db, err := database.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	log.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	var locker cache.Locker = cache.NewMemoryLocker()
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rc
		a.closers = append(a.closers, rc.Close)
		locker = rc
		log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	var publishers []invoice.EventPublisher
	if cfg.Kafka.Enabled {
		a.producer = broker.NewProducer(&broker.Config{Brokers: cfg.Kafka.Brokers})
		a.closers = append(a.closers, a.producer.Close)
		publishers = append(publishers, invoicepublisher.NewKafkaPublisher(a.producer, cfg.Kafka.InvoiceEventsTopic))
		log.Info("Connected to Kafka producer", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	if cfg.Elastic.Enabled {
		es, err := search.NewClient(&search.Config{
			Addresses: cfg.Elastic.Addresses,
			Username:  cfg.Elastic.Username,
			Password:  cfg.Elastic.Password,
		})
		if err != nil {
			log.Warn("Could not connect to Elasticsearch, invoice journal disabled", zap.Error(err))
		} else {
			journal := invoicepublisher.NewElasticJournal(es, cfg.Elastic.InvoiceIndex)
			if err := journal.EnsureIndex(ctx); err != nil {
				log.Warn("Could not create invoice journal index", zap.Error(err))
			}
			publishers = append(publishers, journal)
			log.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
		}
	}

	envs, err := settings.EnvironmentsFromConfig(cfg.Fiscal)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := settings.CheckLeaseTTL(envs, cfg.Reconcile.LeaseTTL); err != nil {
		a.Close()
		return nil, err
	}
	provider, err := settings.NewProvider(settingsrepo.NewSQLRepository(db), envs, cfg.Fiscal.ActiveEnv, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.settings = provider

	tx := database.NewTxManager(db)
	client := fiscal.NewClient(log)

	a.catalog = catalogusecase.NewCatalogUseCase(catalogrepo.NewSQLRepository(db), tx, log)
	a.inventory = inventoryusecase.NewInventoryUseCase(inventoryrepo.NewSQLRepository(db), a.catalog, tx, log)
	customers := customerusecase.NewCustomerUseCase(customerrepo.NewSQLRepository(db), log)

	a.invoices = invoiceusecase.NewInvoiceUseCase(
		invoicerepo.NewSQLRepository(db),
		a.inventory,
		a.catalog,
		customers,
		client,
		provider,
		tx,
		log,
		invoiceusecase.WithLocker(locker),
		invoiceusecase.WithLeaseTTL(cfg.Reconcile.LeaseTTL),
		invoiceusecase.WithLockTTL(cfg.Reconcile.ChassisLockTTL),
		invoiceusecase.WithPublishers(publishers...),
		invoiceusecase.WithOverrideOperators(cfg.Fiscal.OverrideOperators),
	)

	observers := []reconcile.Observer{reconcile.NewLogObserver(log)}
	if a.redis != nil {
		observers = append(observers, reconcile.NewCacheObserver(a.redis, 2*cfg.Reconcile.Interval))
	}
	if a.producer != nil {
		observers = append(observers, reconcile.NewBrokerObserver(a.producer, cfg.Kafka.StatusTopic))
	}
	a.loop = reconcile.NewLoop(a.invoices, client, provider, log,
		reconcile.WithInterval(cfg.Reconcile.Interval),
		reconcile.WithObservers(observers...),
	)

	return a, nil
}

// Close releases infrastructure in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
}
