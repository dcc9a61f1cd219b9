package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone names resolve on hosts without a zoneinfo database
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Ledger   LedgerConfig
	Replica  ReplicaConfig
	Metrics  MetricsConfig
	I18n     I18nConfig
	Report   ReportConfig
}

type ServerConfig struct {
	AppEnv          string
	HTTPPort        string
	GRPCPort        string
	Timezone        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
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

// RedisConfig is only used when Enabled; otherwise locks are in-process.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	SalesTopic     string
	MovementsTopic string
	GroupID        string
}

type LedgerConfig struct {
	AllowNegative  bool
	LockTTL        time.Duration
	MigrateOnStart bool
}

type ReplicaConfig struct {
	SnapshotPath string
}

type MetricsConfig struct {
	Prefix string
}

type I18nConfig struct {
	DefaultLanguage string
}

type ReportConfig struct {
	VelocityWeight    float64
	VolumeWeight      float64
	TurnoverLimit     int
	TopProductsLimit  int
	NoSalesLimit      int
	RecentLimit       int
	LowStockThreshold int
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:          getEnv("APP_ENV", "development"),
			HTTPPort:        getEnv("HTTP_PORT", ":8080"),
			GRPCPort:        getEnv("GRPC_PORT", ":8082"),
			Timezone:        getEnv("APP_TIMEZONE", "Europe/Istanbul"),
			RequestTimeout:  getEnvDuration("HTTP_REQUEST_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5432"),
			User:            getEnv("POSTGRES_USER", "postgres"),
			Password:        getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:          getEnv("POSTGRES_DB", "stock"),
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
			Enabled:        getEnvBool("KAFKA_ENABLED", false),
			Brokers:        getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			SalesTopic:     getEnv("KAFKA_TOPIC_SALES", "sales.events"),
			MovementsTopic: getEnv("KAFKA_TOPIC_MOVEMENTS", "stock.movements"),
			GroupID:        getEnv("KAFKA_GROUP_ID", "stock-ledger"),
		},
		Ledger: LedgerConfig{
			AllowNegative:  getEnvBool("LEDGER_ALLOW_NEGATIVE", true),
			LockTTL:        getEnvDuration("LEDGER_LOCK_TTL", 5*time.Second),
			MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),
		},
		Replica: ReplicaConfig{
			SnapshotPath: getEnv("REPLICA_SNAPSHOT_PATH", "data/catalog.json"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "stock_service"),
		},
		I18n: I18nConfig{
			DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "en"),
		},
		Report: ReportConfig{
			VelocityWeight:    getEnvFloat("REPORT_VELOCITY_WEIGHT", 0.7),
			VolumeWeight:      getEnvFloat("REPORT_VOLUME_WEIGHT", 0.3),
			TurnoverLimit:     getEnvInt("REPORT_TURNOVER_LIMIT", 10),
			TopProductsLimit:  getEnvInt("REPORT_TOP_PRODUCTS_LIMIT", 8),
			NoSalesLimit:      getEnvInt("REPORT_NO_SALES_LIMIT", 6),
			RecentLimit:       getEnvInt("REPORT_RECENT_LIMIT", 5),
			LowStockThreshold: getEnvInt("REPORT_LOW_STOCK_THRESHOLD", 5),
		},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development" || c.Server.AppEnv == "dev"
}

// Location resolves Server.Timezone, the zone report periods are cut in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Server.Timezone, err)
	}
	return loc, nil
}

// Addr prefixes a bare port with a colon.
func Addr(port string) string {
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
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

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
