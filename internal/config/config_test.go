package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/nfvacct/internal/config"
)

// TestLoad tests the Load function with various scenarios.
func TestLoad(t *testing.T) {
	tests := []struct {
		name       string
		configYAML string
		envVars    map[string]string
		wantErr    bool
		validate   func(*testing.T, *config.Config)
	}{
		{
			name: "defaults applied to minimal config",
			configYAML: `
billing:
  host: billing.example.com
accounting:
  nfvipop_id: ncsrd-openstack
`,
			validate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "kafka", cfg.Bus.Driver)
				assert.Equal(t, "MON_ACC", cfg.Kafka.GroupID)
				assert.Equal(t, "ns", cfg.Kafka.Lifecycle.Topic)
				assert.Equal(t, "osm-notification-handler", cfg.Kafka.Lifecycle.ClientID)
				assert.Equal(t, "ns.instances.trans", cfg.Kafka.Telemetry.Topic)
				assert.Equal(t, "accounting-metric-collector", cfg.Kafka.Telemetry.ClientID)
				assert.Equal(t, 300*time.Second, cfg.Aggregator.Interval)
				assert.Equal(t, "catdev1", cfg.Accounting.CatalogUser)
				assert.Equal(t, "default", cfg.Accounting.CatalogTenant)
				assert.Equal(t, "billing.example.com", cfg.Billing.Host)
				assert.Equal(t, "https", cfg.Billing.Protocol)
				assert.Equal(t, uint32(5), cfg.Billing.Breaker.ConsecutiveFailures)
				assert.Len(t, cfg.Telemetry.Metrics, 6)
				assert.Equal(t, "DISK_GB", cfg.Telemetry.MetricKinds()["disksize"])
				assert.Equal(t, "MEMORY_MB", cfg.Telemetry.MetricKinds()["memory.usage"])
			},
		},
		{
			name: "complete config with all sections",
			configYAML: `
environment: staging
server:
  port: 9100
  gin_mode: debug
bus:
  driver: redis
redis:
  addresses:
    - redis-1:6379
  lifecycle_stream: osm:ns
dead_letter:
  driver: kafka
  stream: accounting.dlq
database:
  driver: sqlite
  path: /var/lib/nfvacct/acc.db
osm:
  nbi:
    url: https://osm.example.com:9999
    username: admin
    password: admin
  ro:
    url: http://ro.example.com:9090/openmano
billing:
  protocol: http
  host: 10.0.0.5
  port: 8080
  username: acc
  password: secret
accounting:
  mano_id: osm-central
  nfvipop_id: faas-edge
aggregator:
  interval: 60s
  lock:
    enabled: true
telemetry:
  metrics:
    - name: cpu_util
      kind: CPU_CYCLE
`,
			validate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "staging", cfg.Environment)
				assert.Equal(t, 9100, cfg.Server.Port)
				assert.Equal(t, "redis", cfg.Bus.Driver)
				assert.Equal(t, "osm:ns", cfg.Redis.LifecycleStream)
				assert.Equal(t, 5*time.Minute, cfg.Redis.ClaimMinIdle)
				assert.Empty(t, cfg.Redis.ConsumerName)
				assert.Equal(t, "kafka", cfg.DeadLetter.Driver)
				assert.Equal(t, "accounting.dlq", cfg.DeadLetter.Stream)
				assert.Equal(t, "sqlite", cfg.Database.Driver)
				assert.Equal(t, "https://osm.example.com:9999", cfg.OSM.NBI.URL)
				assert.Equal(t, "http://ro.example.com:9090/openmano", cfg.OSM.RO.URL)
				assert.Equal(t, 8080, cfg.Billing.Port)
				assert.Equal(t, "faas-edge", cfg.Accounting.NfvipopID)
				assert.Equal(t, time.Minute, cfg.Aggregator.Interval)
				assert.True(t, cfg.Aggregator.Lock.Enabled)
				assert.Equal(t, "nfvacct:aggregator:lock", cfg.Aggregator.Lock.Key)
				require.Len(t, cfg.Telemetry.Metrics, 1)
				assert.Equal(t, "cpu_util", cfg.Telemetry.Metrics[0].Name)
			},
		},
		{
			name: "environment variable override",
			configYAML: `
billing:
  host: billing.example.com
`,
			envVars: map[string]string{
				"NFVACCT_BILLING_HOST":                "override.example.com",
				"NFVACCT_OBSERVABILITY_LOGGING_LEVEL": "debug",
				"NFVACCT_AGGREGATOR_INTERVAL":         "2m",
			},
			validate: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "override.example.com", cfg.Billing.Host)
				assert.Equal(t, "debug", cfg.Observability.Logging.Level)
				assert.Equal(t, 2*time.Minute, cfg.Aggregator.Interval)
			},
		},
		{
			name: "invalid yaml",
			configYAML: `
server:
  port: not_a_number
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0600)
			require.NoError(t, err)

			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := config.Load(configPath)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

// TestLoadWithoutConfigFile tests loading with environment variables only.
func TestLoadWithoutConfigFile(t *testing.T) {
	t.Setenv("NFVACCT_BILLING_HOST", "billing:8443")
	t.Setenv("NFVACCT_ACCOUNTING_NFVIPOP_ID", "pop-1")

	cfg, err := config.Load("/nonexistent/config.yaml")

	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "billing:8443", cfg.Billing.Host)
	assert.Equal(t, "pop-1", cfg.Accounting.NfvipopID)
}

func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Enabled: true,
			Port:    8081,
			GinMode: "release",
		},
		Bus: config.BusConfig{Driver: config.BusDriverKafka},
		Kafka: config.KafkaConfig{
			Brokers:     []string{"kafka:9092"},
			GroupID:     "MON_ACC",
			Lifecycle:   config.TopicConfig{Topic: "ns"},
			Telemetry:   config.TopicConfig{Topic: "ns.instances.trans"},
			StartOffset: "last",
		},
		Redis: config.RedisConfig{
			Mode:      "standalone",
			Addresses: []string{"localhost:6379"},
		},
		DeadLetter: config.DeadLetterConfig{Driver: config.DeadLetterRedis, Stream: "nfvacct:dlq"},
		Database: config.DatabaseConfig{
			Driver: config.DatabasePostgres,
			Host:   "db",
			Name:   "accounting",
		},
		OSM: config.OSMConfig{
			NBI: config.NBIConfig{URL: "https://osm:9999"},
			RO:  config.ROConfig{URL: "http://osm:9090/openmano"},
		},
		Billing: config.BillingConfig{
			Protocol: "https",
			Host:     "billing",
			Port:     443,
		},
		Accounting: config.AccountingConfig{NfvipopID: "pop-1"},
		Aggregator: config.AggregatorConfig{
			Enabled:  true,
			Interval: 300 * time.Second,
		},
		Telemetry: config.TelemetryConfig{Metrics: config.DefaultTelemetryMetrics()},
		Observability: config.ObservabilityConfig{
			Logging: config.LoggingConfig{
				Level:  "info",
				Format: "json",
			},
		},
	}
}

// TestValidate tests the Validate function with various configurations.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*config.Config) {},
		},
		{
			name:    "invalid server port",
			mutate:  func(c *config.Config) { c.Server.Port = 70000 },
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name: "server port ignored when disabled",
			mutate: func(c *config.Config) {
				c.Server.Enabled = false
				c.Server.Port = 0
			},
		},
		{
			name:    "unknown bus driver",
			mutate:  func(c *config.Config) { c.Bus.Driver = "nats" },
			wantErr: true,
			errMsg:  "invalid bus driver",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *config.Config) { c.Kafka.Brokers = nil },
			wantErr: true,
			errMsg:  "kafka brokers cannot be empty",
		},
		{
			name:    "invalid start offset",
			mutate:  func(c *config.Config) { c.Kafka.StartOffset = "middle" },
			wantErr: true,
			errMsg:  "invalid kafka start_offset",
		},
		{
			name:    "unknown dead letter driver",
			mutate:  func(c *config.Config) { c.DeadLetter.Driver = "s3" },
			wantErr: true,
			errMsg:  "invalid dead_letter driver",
		},
		{
			name: "redis skipped when unused",
			mutate: func(c *config.Config) {
				c.DeadLetter.Driver = config.DeadLetterNone
				c.Redis.Addresses = nil
			},
		},
		{
			name: "sentinel without master name",
			mutate: func(c *config.Config) {
				c.Redis.Mode = "sentinel"
			},
			wantErr: true,
			errMsg:  "master_name is required",
		},
		{
			name:    "negative claim idle time",
			mutate:  func(c *config.Config) { c.Redis.ClaimMinIdle = -time.Second },
			wantErr: true,
			errMsg:  "claim_min_idle cannot be negative",
		},
		{
			name:    "unknown database driver",
			mutate:  func(c *config.Config) { c.Database.Driver = "oracle" },
			wantErr: true,
			errMsg:  "invalid database driver",
		},
		{
			name: "sqlite in memory needs no path",
			mutate: func(c *config.Config) {
				c.Database.Driver = config.DatabaseSQLite
				c.Database.InMemory = true
			},
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *config.Config) { c.Database.Driver = config.DatabaseSQLite },
			wantErr: true,
			errMsg:  "database path is required",
		},
		{
			name:    "missing billing host",
			mutate:  func(c *config.Config) { c.Billing.Host = "" },
			wantErr: true,
			errMsg:  "billing host is required",
		},
		{
			name:    "missing nfvipop id",
			mutate:  func(c *config.Config) { c.Accounting.NfvipopID = "" },
			wantErr: true,
			errMsg:  "nfvipop_id is required",
		},
		{
			name:    "non-positive aggregator interval",
			mutate:  func(c *config.Config) { c.Aggregator.Interval = 0 },
			wantErr: true,
			errMsg:  "aggregator interval must be positive",
		},
		{
			name: "unknown telemetry kind",
			mutate: func(c *config.Config) {
				c.Telemetry.Metrics = []config.MetricMapping{{Name: "net.bytes", Kind: "NETWORK"}}
			},
			wantErr: true,
			errMsg:  "invalid telemetry kind",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.Observability.Logging.Level = "trace" },
			wantErr: true,
			errMsg:  "invalid logging level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
		})
	}
}
