package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRollupConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	NodeID      int64

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Log     LogConfig
	Tracing TracingConfig
	Metrics MetricsPushConfig
	Worker  WorkerConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig points the OTLP trace exporter at a collector. Protocol is
// grpc or http.
type TracingConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

// MetricsPushConfig describes where batch runs push their metrics.
type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

func (c MetricsPushConfig) Enabled() bool {
	return c.Exporter != "" && c.Endpoint != ""
}

type WorkerConfig struct {
	Enabled          bool
	PollInterval     time.Duration
	RunTimeout       time.Duration
	MaxPeriodsPerRun int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "retailsales"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		NodeID:      getenvInt64("SNOWFLAKE_NODE", 1),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "retailsales"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "retailsales.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			Format: strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		},
		Tracing: TracingConfig{
			Enabled:       getenvBool("OTEL_ENABLED", false),
			Endpoint:      strings.TrimSpace(getenv("OTLP_ENDPOINT", "localhost:4317")),
			Protocol:      strings.ToLower(strings.TrimSpace(getenv("OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Metrics: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
		},
		Worker: WorkerConfig{
			Enabled:          getenvBool("ROLLUP_WORKER_ENABLED", true),
			PollInterval:     getenvDuration("ROLLUP_WORKER_POLL_INTERVAL", 5*time.Minute),
			RunTimeout:       getenvDuration("ROLLUP_WORKER_RUN_TIMEOUT", 10*time.Minute),
			MaxPeriodsPerRun: int(getenvInt64("ROLLUP_WORKER_MAX_PERIODS", 31)),
		},
	}
}

// Debug reports whether verbose diagnostics are wanted: debug logging or a
// development environment.
func (c Config) Debug() bool {
	if c.Log.Level == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
