package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration, composed per concern: one
// struct per subsystem, unmarshaled in a single pass by viper.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Queue        QueueConfig
	Orchestrator OrchestratorConfig
	Events       EventsConfig
	Metrics      MetricsConfig
	Auth         AuthConfig
	LogLevel     string
}

type ServerConfig struct {
	Host         string
	Port         int
	AdminPort    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// DatabaseConfig holds the Postgres connection pieces for the relational
// state store (C5). Store tests bypass this and open an in-memory SQLite
// database directly.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the connection string gorm's postgres driver expects.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// QueueConfig tunes the poller and worker pool (spec.md §4.4).
type QueueConfig struct {
	WorkerID          string
	Concurrency       int
	PollInterval      time.Duration
	Batch             int
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	RetryMaxAttempts  int
	RetryBaseBackoff  time.Duration
	RetryMaxBackoff   time.Duration
}

// OrchestratorConfig tunes process/task defaults and the reconciliation
// sweep (spec.md §4.6, §9).
type OrchestratorConfig struct {
	DefaultTaskTimeout time.Duration
	DefaultMaxRetries  int
	RetryBackoff       time.Duration
	ReconcileInterval  time.Duration
}

// EventsConfig points at the Redis instance used for cross-node pub/sub
// fan-out of process/task lifecycle events.
type EventsConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// Load reads config.yaml (if present) layered under CLIFLOW_* environment
// variables and the spec.md §6 defaults.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/cliflow")

	setDefaults()

	viper.SetEnvPrefix("CLIFLOW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.adminport", 8081)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 100)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "cliflow")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.name", "cliflow")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxopenconns", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("database.connmaxlifetime", 30*time.Minute)

	// Queue defaults (spec.md §6: poll interval 5s, lease duration 5m,
	// heartbeat kept well inside L/3)
	viper.SetDefault("queue.workerid", "")
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.pollinterval", 5*time.Second)
	viper.SetDefault("queue.batch", 10)
	viper.SetDefault("queue.leaseduration", 5*time.Minute)
	viper.SetDefault("queue.heartbeatinterval", 30*time.Second)
	viper.SetDefault("queue.retrymaxattempts", 5)
	viper.SetDefault("queue.retrybasebackoff", 1*time.Second)
	viper.SetDefault("queue.retrymaxbackoff", 5*time.Minute)

	// Orchestrator defaults
	viper.SetDefault("orchestrator.defaulttasktimeout", 60*time.Minute)
	viper.SetDefault("orchestrator.defaultmaxretries", 3)
	viper.SetDefault("orchestrator.retrybackoff", 30*time.Second)
	viper.SetDefault("orchestrator.reconcileinterval", 30*time.Second)

	// Events defaults
	viper.SetDefault("events.addr", "localhost:6379")
	viper.SetDefault("events.password", "")
	viper.SetDefault("events.db", 0)
	viper.SetDefault("events.poolsize", 100)
	viper.SetDefault("events.minidleconns", 10)
	viper.SetDefault("events.dialtimeout", 5*time.Second)
	viper.SetDefault("events.readtimeout", 3*time.Second)
	viper.SetDefault("events.writetimeout", 3*time.Second)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	// Logging defaults
	viper.SetDefault("loglevel", "info")
}
