package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Elastic   ElasticsearchConfig
	Fiscal    FiscalConfig
	Reconcile ReconcileConfig
}

type ServerConfig struct {
	AppEnv   string
	HTTPPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type DatabaseConfig struct {
	Driver          string // sqlite3 | pgx
	SQLitePath      string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	SalesTopic         string
	GroupID            string
	InvoiceEventsTopic string
	StatusTopic        string
}

type ElasticsearchConfig struct {
	Enabled      bool
	Addresses    []string
	Username     string
	Password     string
	InvoiceIndex string
}

// FiscalEnvironmentConfig describes one named fiscal authority endpoint.
type FiscalEnvironmentConfig struct {
	BaseURL     string
	POSID       string
	USIN        string
	Token       string
	TaxRate     string
	InvoiceType int
	Discount    string
	PCTCode     string
	ItemCode    string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

type FiscalConfig struct {
	ActiveEnv  string // sandbox | production
	Sandbox    FiscalEnvironmentConfig
	Production FiscalEnvironmentConfig
	// OverrideOperators maps operator name to the key allowed to bypass the
	// duplicate chassis guard. Empty disables overrides.
	OverrideOperators map[string]string
}

type ReconcileConfig struct {
	Interval       time.Duration
	LeaseTTL       time.Duration
	ChassisLockTTL time.Duration
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:   getEnv("APP_ENV", "dev"),
			HTTPPort: getEnv("HTTP_PORT", ":8085"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite3"),
			SQLitePath:      getEnv("DB_SQLITE_PATH", "fiscal.db"),
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_fiscal"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:            getEnvBool("KAFKA_ENABLED", false),
			Brokers:            getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			SalesTopic:         getEnv("KAFKA_TOPIC_SALES", "sales.recorded"),
			GroupID:            getEnv("KAFKA_GROUP_FISCAL", "fiscal"),
			InvoiceEventsTopic: getEnv("KAFKA_TOPIC_INVOICE_EVENTS", "fiscal.invoice-events"),
			StatusTopic:        getEnv("KAFKA_TOPIC_SYNC_STATUS", "fiscal.sync-status"),
		},
		Elastic: ElasticsearchConfig{
			Enabled:      getEnvBool("ELASTICSEARCH_ENABLED", false),
			Addresses:    getEnvSlice("ELASTICSEARCH_ADDRESSES", []string{"http://localhost:9200"}),
			Username:     getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:     getEnv("ELASTICSEARCH_PASSWORD", ""),
			InvoiceIndex: getEnv("ELASTICSEARCH_INVOICE_INDEX", "fiscal-invoices"),
		},
		Fiscal: FiscalConfig{
			ActiveEnv:  getEnv("FISCAL_ACTIVE_ENV", "sandbox"),
			Sandbox:    loadFiscalEnvironment("FISCAL_SANDBOX_", "https://esp.fbr.gov.pk:8244/FBR/v1/api/Live/PostData"),
			Production: loadFiscalEnvironment("FISCAL_PRODUCTION_", "https://gw.fbr.gov.pk/imsp/v1/api/Live/PostData"),

			OverrideOperators: getEnvMap("FISCAL_OVERRIDE_OPERATORS"),
		},
		Reconcile: ReconcileConfig{
			Interval:       getEnvDuration("RECONCILE_INTERVAL", 60*time.Second),
			LeaseTTL:       getEnvDuration("RECONCILE_LEASE_TTL", 2*time.Minute),
			ChassisLockTTL: getEnvDuration("CHASSIS_LOCK_TTL", 10*time.Second),
		},
	}
}

func loadFiscalEnvironment(prefix, defaultURL string) FiscalEnvironmentConfig {
	return FiscalEnvironmentConfig{
		BaseURL:     getEnv(prefix+"BASE_URL", defaultURL),
		POSID:       getEnv(prefix+"POS_ID", ""),
		USIN:        getEnv(prefix+"USIN", "USIN0"),
		Token:       getEnv(prefix+"TOKEN", ""),
		TaxRate:     getEnv(prefix+"TAX_RATE", "18"),
		InvoiceType: getEnvInt(prefix+"INVOICE_TYPE", 1),
		Discount:    getEnv(prefix+"DISCOUNT", "0"),
		PCTCode:     getEnv(prefix+"PCT_CODE", "87112010"),
		ItemCode:    getEnv(prefix+"ITEM_CODE", "MC"),
		Timeout:     getEnvDuration(prefix+"TIMEOUT", 15*time.Second),
		MaxAttempts: getEnvInt(prefix+"MAX_ATTEMPTS", 3),
		BackoffBase: getEnvDuration(prefix+"BACKOFF_BASE", 500*time.Millisecond),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}

// getEnvMap parses "name:value,name2:value2". Malformed pairs are skipped.
func getEnvMap(key string) map[string]string {
	out := map[string]string{}
	value, ok := os.LookupEnv(key)
	if !ok {
		return out
	}
	for _, pair := range strings.Split(value, ",") {
		name, v, found := strings.Cut(strings.TrimSpace(pair), ":")
		name, v = strings.TrimSpace(name), strings.TrimSpace(v)
		if !found || name == "" || v == "" {
			continue
		}
		out[name] = v
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
