// Package config provides configuration management for the NFV accounting
// reconciler. It loads configuration from YAML files and environment variables
// using Viper, applies defaults and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigPath is the configuration file used when no --config flag is given.
const DefaultConfigPath = "config/config.yaml"

// Supported driver names.
const (
	BusDriverKafka = "kafka"
	BusDriverRedis = "redis"

	DeadLetterRedis = "redis"
	DeadLetterKafka = "kafka"
	DeadLetterNone  = "none"

	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Config represents the complete configuration for the reconciler.
//
// Configuration can be loaded from:
//   - YAML file (config/config.yaml)
//   - Environment variables (prefixed with NFVACCT_)
//
// Example:
//
//	cfg, err := config.Load("config/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Environment is a free-form deployment label (development, staging, production)
	Environment string `mapstructure:"environment"`

	Server        ServerConfig        `mapstructure:"server"`
	Bus           BusConfig           `mapstructure:"bus"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Redis         RedisConfig         `mapstructure:"redis"`
	DeadLetter    DeadLetterConfig    `mapstructure:"dead_letter"`
	Database      DatabaseConfig      `mapstructure:"database"`
	OSM           OSMConfig           `mapstructure:"osm"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Accounting    AccountingConfig    `mapstructure:"accounting"`
	Aggregator    AggregatorConfig    `mapstructure:"aggregator"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig contains the operational HTTP server configuration (health and metrics).
type ServerConfig struct {
	// Enabled toggles the operational HTTP server
	Enabled bool `mapstructure:"enabled"`

	// Host is the network interface to bind to (e.g., "0.0.0.0", "localhost")
	Host string `mapstructure:"host"`

	// Port is the HTTP server port (default: 8081)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// GinMode sets the Gin framework mode ("debug", "release", "test")
	GinMode string `mapstructure:"gin_mode"`
}

// BusConfig selects the transport that delivers lifecycle and telemetry messages.
type BusConfig struct {
	// Driver is "kafka" (OSM bus) or "redis" (Redis Streams bridge)
	Driver string `mapstructure:"driver"`
}

// KafkaConfig contains Kafka consumer settings for the OSM bus.
type KafkaConfig struct {
	// Brokers is the list of bootstrap servers
	Brokers []string `mapstructure:"brokers"`

	// GroupID is the consumer group shared by both consumers
	GroupID string `mapstructure:"group_id"`

	Lifecycle TopicConfig `mapstructure:"lifecycle"`
	Telemetry TopicConfig `mapstructure:"telemetry"`

	// MinBytes and MaxBytes bound a single fetch
	MinBytes int `mapstructure:"min_bytes"`
	MaxBytes int `mapstructure:"max_bytes"`

	// MaxWait is the longest a fetch waits for MinBytes
	MaxWait time.Duration `mapstructure:"max_wait"`

	// StartOffset is "first" or "last" and applies to new consumer groups only
	StartOffset string `mapstructure:"start_offset"`

	// DialTimeout is the broker connection timeout
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// TopicConfig binds one topic to the client id used when consuming it.
type TopicConfig struct {
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

// RedisConfig contains Redis client configuration.
type RedisConfig struct {
	// Mode specifies Redis deployment mode: "standalone" or "sentinel"
	Mode string `mapstructure:"mode"`

	// Addresses contains Redis server addresses
	// For standalone: ["localhost:6379"]
	// For sentinel: ["sentinel1:26379", "sentinel2:26379"]
	Addresses []string `mapstructure:"addresses"`

	// MasterName is required for Sentinel mode (e.g., "mymaster")
	MasterName string `mapstructure:"master_name"`

	// Password for Redis authentication (optional)
	Password string `mapstructure:"password"`

	// DB is the Redis database number (0-15)
	DB int `mapstructure:"db"`

	// PoolSize is the maximum number of socket connections
	PoolSize int `mapstructure:"pool_size"`

	// MaxRetries is the maximum number of retries before giving up
	MaxRetries int `mapstructure:"max_retries"`

	// DialTimeout is the timeout for establishing new connections
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the timeout for socket writes
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// LifecycleStream and TelemetryStream are used when bus.driver is "redis"
	LifecycleStream string `mapstructure:"lifecycle_stream"`
	TelemetryStream string `mapstructure:"telemetry_stream"`

	// ConsumerName identifies this replica in the stream consumer groups.
	// It must stay the same across restarts; empty means the hostname.
	ConsumerName string `mapstructure:"consumer_name"`

	// ClaimMinIdle is how long an entry must sit unacknowledged with another
	// consumer before this one takes it over (0 disables claiming)
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
}

// DeadLetterConfig configures where unprocessable messages are parked.
type DeadLetterConfig struct {
	// Driver is "redis", "kafka" or "none"
	Driver string `mapstructure:"driver"`

	// Stream is the Redis stream key or Kafka topic
	Stream string `mapstructure:"stream"`

	// MaxLen caps the Redis stream length (approximate trimming)
	MaxLen int64 `mapstructure:"max_len"`
}

// DatabaseConfig contains the relational store configuration.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver string `mapstructure:"driver"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	// Path is the sqlite database file
	Path string `mapstructure:"path"`

	// InMemory uses a shared in-memory sqlite database
	InMemory bool `mapstructure:"in_memory"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// AutoMigrate runs schema migration on startup
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// OSMConfig groups the orchestrator endpoints.
type OSMConfig struct {
	NBI NBIConfig `mapstructure:"nbi"`
	RO  ROConfig  `mapstructure:"ro"`
}

// NBIConfig contains OSM northbound interface settings.
type NBIConfig struct {
	URL            string        `mapstructure:"url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Project        string        `mapstructure:"project"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

// ROConfig contains OpenMANO resource orchestrator settings.
type ROConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BillingConfig contains accounting backend settings.
type BillingConfig struct {
	// Protocol, Host and Port form the service root ({protocol}://{host}:{port})
	Protocol string `mapstructure:"protocol"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the billing backend.
type BreakerConfig struct {
	// MaxRequests allowed in half-open state
	MaxRequests uint32 `mapstructure:"max_requests"`

	// Interval clears failure counts while closed (0 never clears)
	Interval time.Duration `mapstructure:"interval"`

	// Timeout is how long the breaker stays open
	Timeout time.Duration `mapstructure:"timeout"`

	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
}

// AccountingConfig carries the fixed identifiers reported with every NS session.
type AccountingConfig struct {
	ManoID        string `mapstructure:"mano_id"`
	NfvipopID     string `mapstructure:"nfvipop_id"`
	CatalogUser   string `mapstructure:"catalog_user"`
	CatalogTenant string `mapstructure:"catalog_tenant"`
	ManoProject   string `mapstructure:"mano_project"`
}

// AggregatorConfig contains the consumption aggregator schedule.
type AggregatorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`

	// RunTimeout bounds a single sweep
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	Lock LockConfig `mapstructure:"lock"`
}

// LockConfig configures the cross-replica aggregator lock held in Redis.
type LockConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// TelemetryConfig configures metric ingestion.
type TelemetryConfig struct {
	// Metrics is the allow-list of metric names and the consumption kind each maps to.
	// A list is used because metric names contain dots, which Viper treats as key separators.
	Metrics []MetricMapping `mapstructure:"metrics"`
}

// MetricMapping maps one telemetry metric name to a consumption kind.
type MetricMapping struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
}

// ObservabilityConfig contains logging and metrics configuration.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level sets the log level ("debug", "info", "warn", "error", "fatal")
	Level string `mapstructure:"level"`

	// Format sets the log format ("json", "console")
	Format string `mapstructure:"format"`

	// OutputPaths is a list of output destinations (e.g., ["stdout", "/var/log/app.log"])
	OutputPaths []string `mapstructure:"output_paths"`

	// ErrorOutputPaths is a list of error output destinations
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`

	// EnableCaller adds caller information to log entries
	EnableCaller bool `mapstructure:"enable_caller"`

	// EnableStacktrace adds stacktrace on errors
	EnableStacktrace bool `mapstructure:"enable_stacktrace"`

	// Development enables development mode (more verbose, console format)
	Development bool `mapstructure:"development"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from the specified file path and environment variables.
// Environment variables override file values and should be prefixed with NFVACCT_.
// For nested values, use underscores (e.g., NFVACCT_BILLING_HOST).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nfvacct")
	}

	v.SetEnvPrefix("NFVACCT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional if all values come from env vars
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DefaultTelemetryMetrics returns the metric names accepted by telemetry ingestion.
func DefaultTelemetryMetrics() []MetricMapping {
	return []MetricMapping{
		{Name: "memory.usage", Kind: "MEMORY_MB"},
		{Name: "disk.usage", Kind: "DISK_GB"},
		{Name: "cpu_util", Kind: "CPU_CYCLE"},
		{Name: "container_memory_usage_bytes", Kind: "MEMORY_MB"},
		{Name: "memory", Kind: "MEMORY_MB"},
		{Name: "disksize", Kind: "DISK_GB"},
	}
}

// MetricKinds returns the configured allow-list as a name to kind map.
func (t TelemetryConfig) MetricKinds() map[string]string {
	kinds := make(map[string]string, len(t.Metrics))
	for _, m := range t.Metrics {
		kinds[m.Name] = m.Kind
	}
	return kinds
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")

	// Operational server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.gin_mode", "release")

	// Bus defaults
	v.SetDefault("bus.driver", BusDriverKafka)
	v.SetDefault("kafka.brokers", []string{"kafka:9092"})
	v.SetDefault("kafka.group_id", "MON_ACC")
	v.SetDefault("kafka.lifecycle.topic", "ns")
	v.SetDefault("kafka.lifecycle.client_id", "osm-notification-handler")
	v.SetDefault("kafka.telemetry.topic", "ns.instances.trans")
	v.SetDefault("kafka.telemetry.client_id", "accounting-metric-collector")
	v.SetDefault("kafka.min_bytes", 1)
	v.SetDefault("kafka.max_bytes", 10485760)
	v.SetDefault("kafka.max_wait", "1s")
	v.SetDefault("kafka.start_offset", "last")
	v.SetDefault("kafka.dial_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.lifecycle_stream", "nfvacct:ns")
	v.SetDefault("redis.telemetry_stream", "nfvacct:ns.instances.trans")
	v.SetDefault("redis.consumer_name", "")
	v.SetDefault("redis.claim_min_idle", "5m")

	// Dead letter defaults
	v.SetDefault("dead_letter.driver", DeadLetterRedis)
	v.SetDefault("dead_letter.stream", "nfvacct:dlq")
	v.SetDefault("dead_letter.max_len", 10000)

	// Database defaults
	v.SetDefault("database.driver", DatabasePostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "accounting")
	v.SetDefault("database.name", "accounting")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "")
	v.SetDefault("database.in_memory", false)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	// OSM defaults
	v.SetDefault("osm.nbi.url", "https://localhost:9999")
	v.SetDefault("osm.nbi.username", "admin")
	v.SetDefault("osm.nbi.password", "")
	v.SetDefault("osm.nbi.project", "admin")
	v.SetDefault("osm.nbi.request_timeout", "30s")
	v.SetDefault("osm.nbi.max_retries", 3)
	v.SetDefault("osm.nbi.retry_delay", "1s")
	v.SetDefault("osm.nbi.retry_max_delay", "10s")
	v.SetDefault("osm.ro.url", "http://localhost:9090/openmano")
	v.SetDefault("osm.ro.request_timeout", "30s")

	// Billing defaults
	v.SetDefault("billing.protocol", "https")
	v.SetDefault("billing.host", "")
	v.SetDefault("billing.username", "")
	v.SetDefault("billing.password", "")
	v.SetDefault("billing.port", 443)
	v.SetDefault("billing.request_timeout", "30s")
	v.SetDefault("billing.breaker.max_requests", 1)
	v.SetDefault("billing.breaker.interval", "0s")
	v.SetDefault("billing.breaker.timeout", "30s")
	v.SetDefault("billing.breaker.consecutive_failures", 5)

	// Accounting identifiers
	v.SetDefault("accounting.mano_id", "")
	v.SetDefault("accounting.nfvipop_id", "")
	v.SetDefault("accounting.catalog_user", "catdev1")
	v.SetDefault("accounting.catalog_tenant", "default")
	v.SetDefault("accounting.mano_project", "default")

	// Aggregator defaults
	v.SetDefault("aggregator.enabled", true)
	v.SetDefault("aggregator.interval", "300s")
	v.SetDefault("aggregator.run_timeout", "240s")
	v.SetDefault("aggregator.lock.enabled", false)
	v.SetDefault("aggregator.lock.key", "nfvacct:aggregator:lock")
	v.SetDefault("aggregator.lock.ttl", "270s")

	defaultMetrics := make([]map[string]interface{}, 0, len(DefaultTelemetryMetrics()))
	for _, m := range DefaultTelemetryMetrics() {
		defaultMetrics = append(defaultMetrics, map[string]interface{}{"name": m.Name, "kind": m.Kind})
	}
	v.SetDefault("telemetry.metrics", defaultMetrics)

	// Logging defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.output_paths", []string{"stdout"})
	v.SetDefault("observability.logging.error_output_paths", []string{"stderr"})
	v.SetDefault("observability.logging.enable_caller", true)
	v.SetDefault("observability.logging.enable_stacktrace", false)
	v.SetDefault("observability.logging.development", false)

	// Metrics defaults
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
}

// Validate checks the configuration for errors and inconsistencies.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateBus(); err != nil {
		return err
	}

	if err := c.validateRedis(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRemotes(); err != nil {
		return err
	}

	if err := c.validateAggregator(); err != nil {
		return err
	}

	if err := c.validateTelemetry(); err != nil {
		return err
	}

	if err := c.validateLogging(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Server.GinMode != "debug" && c.Server.GinMode != "release" && c.Server.GinMode != "test" {
		return fmt.Errorf("invalid gin_mode: %s (must be debug, release, or test)", c.Server.GinMode)
	}

	return nil
}

func (c *Config) validateBus() error {
	switch c.Bus.Driver {
	case BusDriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers cannot be empty")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka group_id is required")
		}
		if c.Kafka.Lifecycle.Topic == "" || c.Kafka.Telemetry.Topic == "" {
			return fmt.Errorf("kafka lifecycle and telemetry topics are required")
		}
		if c.Kafka.StartOffset != "first" && c.Kafka.StartOffset != "last" {
			return fmt.Errorf("invalid kafka start_offset: %s (must be first or last)", c.Kafka.StartOffset)
		}
	case BusDriverRedis:
		if c.Redis.LifecycleStream == "" || c.Redis.TelemetryStream == "" {
			return fmt.Errorf("redis lifecycle_stream and telemetry_stream are required for the redis bus")
		}
	default:
		return fmt.Errorf("invalid bus driver: %s (must be kafka or redis)", c.Bus.Driver)
	}

	switch c.DeadLetter.Driver {
	case DeadLetterRedis, DeadLetterKafka:
		if c.DeadLetter.Stream == "" {
			return fmt.Errorf("dead_letter stream is required for driver %s", c.DeadLetter.Driver)
		}
	case DeadLetterNone:
	default:
		return fmt.Errorf("invalid dead_letter driver: %s (must be redis, kafka, or none)", c.DeadLetter.Driver)
	}

	if c.DeadLetter.Driver == DeadLetterKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required for the kafka dead letter driver")
	}

	return nil
}

// UsesRedis reports whether any enabled component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Bus.Driver == BusDriverRedis ||
		c.DeadLetter.Driver == DeadLetterRedis ||
		(c.Aggregator.Enabled && c.Aggregator.Lock.Enabled)
}

func (c *Config) validateRedis() error {
	if !c.UsesRedis() {
		return nil
	}

	if c.Redis.Mode != "standalone" && c.Redis.Mode != "sentinel" {
		return fmt.Errorf("invalid redis mode: %s (must be standalone or sentinel)", c.Redis.Mode)
	}

	if len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("redis addresses cannot be empty")
	}

	if c.Redis.Mode == "sentinel" && c.Redis.MasterName == "" {
		return fmt.Errorf("redis master_name is required for sentinel mode")
	}

	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		return fmt.Errorf("invalid redis db: %d (must be 0-15)", c.Redis.DB)
	}

	if c.Redis.ClaimMinIdle < 0 {
		return fmt.Errorf("redis claim_min_idle cannot be negative")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DatabasePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database host and name are required for postgres")
		}
	case DatabaseSQLite:
		if !c.Database.InMemory && c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite unless in_memory is set")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite)", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateRemotes() error {
	if c.OSM.NBI.URL == "" {
		return fmt.Errorf("osm nbi url is required")
	}
	if c.OSM.RO.URL == "" {
		return fmt.Errorf("osm ro url is required")
	}
	if c.Billing.Host == "" {
		return fmt.Errorf("billing host is required")
	}
	if c.Billing.Protocol != "http" && c.Billing.Protocol != "https" {
		return fmt.Errorf("invalid billing protocol: %s (must be http or https)", c.Billing.Protocol)
	}
	if c.Billing.Port < 1 || c.Billing.Port > 65535 {
		return fmt.Errorf("invalid billing port: %d (must be 1-65535)", c.Billing.Port)
	}
	if c.Accounting.NfvipopID == "" {
		return fmt.Errorf("accounting nfvipop_id is required")
	}
	return nil
}

func (c *Config) validateAggregator() error {
	if !c.Aggregator.Enabled {
		return nil
	}
	if c.Aggregator.Interval <= 0 {
		return fmt.Errorf("aggregator interval must be positive")
	}
	if c.Aggregator.Lock.Enabled && c.Aggregator.Lock.TTL <= 0 {
		return fmt.Errorf("aggregator lock ttl must be positive")
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if len(c.Telemetry.Metrics) == 0 {
		return fmt.Errorf("telemetry metrics allow-list cannot be empty")
	}
	for _, m := range c.Telemetry.Metrics {
		if m.Name == "" {
			return fmt.Errorf("telemetry metric name cannot be empty")
		}
		switch m.Kind {
		case "CPU_CYCLE", "MEMORY_MB", "DISK_GB":
		default:
			return fmt.Errorf("invalid telemetry kind %q for metric %q", m.Kind, m.Name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Observability.Logging.Level)
	}

	if c.Observability.Logging.Format != "json" && c.Observability.Logging.Format != "console" {
		return fmt.Errorf("invalid logging format: %s (must be json or console)", c.Observability.Logging.Format)
	}

	return nil
}
