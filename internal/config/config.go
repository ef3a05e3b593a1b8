// Package config loads SlimLO's pool/server configuration: a YAML file with
// environment-variable overrides, in the same shape the teacher repo's
// configuration package uses.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is SlimLO's full runtime configuration.
type Config struct {
	Pool     PoolConfig       `yaml:"pool"`
	Server   ServerConfig     `yaml:"server"`
	Cache    CacheConfig      `yaml:"cache"`
	Audit    AuditConfig      `yaml:"audit"`
	PubSub   PubSubConfig     `yaml:"pubsub"`
	Tasks    CloudTasksConfig `yaml:"cloud_tasks"`
	Identity IdentityConfig   `yaml:"identity"`
}

// PoolConfig configures the conversion worker pool.
type PoolConfig struct {
	WorkerPath             string   `yaml:"worker_path"`
	ResourcePath           string   `yaml:"resource_path"`
	FontDirs               []string `yaml:"font_dirs"`
	MaxWorkers             int      `yaml:"max_workers"`
	RecycleAfter           int      `yaml:"recycle_after"`
	ConversionTimeoutSec   int      `yaml:"conversion_timeout_sec"`
	GracefulShutdownSec    int      `yaml:"graceful_shutdown_sec"`
	IdleRecycleSec         int      `yaml:"idle_recycle_sec"`
	MaintenanceIntervalSec int      `yaml:"maintenance_interval_sec"`
}

// ServerConfig configures the HTTP facade in cmd/slimlo-server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	RequireIdentity bool   `yaml:"require_identity"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSec        int    `yaml:"ttl_sec"`
}

// AuditConfig configures the Postgres audit log.
type AuditConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Enabled     bool   `yaml:"enabled"`
}

// PubSubConfig configures the optional Cloud Pub/Sub event mirror.
type PubSubConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

// CloudTasksConfig configures durable webhook dispatch.
type CloudTasksConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	QueueID    string `yaml:"queue_id"`
}

// IdentityConfig configures the SPIFFE/SPIRE workload identity source used
// to secure the HTTP facade.
type IdentityConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SocketPath  string `yaml:"socket_path"`
	TrustDomain string `yaml:"trust_domain"`
}

// ConversionTimeout returns the per-conversion timeout as a duration.
func (p PoolConfig) ConversionTimeout() time.Duration {
	return time.Duration(p.ConversionTimeoutSec) * time.Second
}

// GracefulShutdown returns the Dispose grace period as a duration.
func (p PoolConfig) GracefulShutdown() time.Duration {
	return time.Duration(p.GracefulShutdownSec) * time.Second
}

// IdleRecycle returns the idle-worker sweep threshold as a duration.
func (p PoolConfig) IdleRecycle() time.Duration {
	return time.Duration(p.IdleRecycleSec) * time.Second
}

// MaintenanceInterval returns the idle-sweep ticker interval as a duration.
func (p PoolConfig) MaintenanceInterval() time.Duration {
	return time.Duration(p.MaintenanceIntervalSec) * time.Second
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton Config, loading it from
// CONFIG_PATH (default "config.yaml") and a local .env file on first call.
func Get() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Debug("config: no .env file loaded", "error", err)
		}
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadConfig reads and decodes a YAML config file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Pool.WorkerPath = getEnv("SLIMLO_WORKER_PATH", c.Pool.WorkerPath)
	c.Pool.ResourcePath = getEnv("SLIMLO_RESOURCE_PATH", c.Pool.ResourcePath)
	if dirs := getEnv("SLIMLO_FONT_DIRS", ""); dirs != "" {
		c.Pool.FontDirs = splitCSV(dirs)
	}
	if v := getEnvInt("SLIMLO_MAX_WORKERS", 0); v > 0 {
		c.Pool.MaxWorkers = v
	}
	if v := getEnvInt("SLIMLO_RECYCLE_AFTER", -1); v >= 0 {
		c.Pool.RecycleAfter = v
	}
	if v := getEnvInt("SLIMLO_CONVERSION_TIMEOUT_SEC", 0); v > 0 {
		c.Pool.ConversionTimeoutSec = v
	}
	if v := getEnvInt("SLIMLO_GRACEFUL_SHUTDOWN_SEC", 0); v > 0 {
		c.Pool.GracefulShutdownSec = v
	}
	if v := getEnvInt("SLIMLO_IDLE_RECYCLE_SEC", 0); v > 0 {
		c.Pool.IdleRecycleSec = v
	}

	c.Server.Addr = getEnv("SLIMLO_SERVER_ADDR", c.Server.Addr)
	c.Server.RequireIdentity = getEnvBool("SLIMLO_REQUIRE_IDENTITY", c.Server.RequireIdentity)

	c.Cache.RedisAddr = getEnv("SLIMLO_REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnv("SLIMLO_REDIS_PASSWORD", c.Cache.RedisPassword)
	if v := getEnvInt("SLIMLO_REDIS_DB", -1); v >= 0 {
		c.Cache.RedisDB = v
	}

	c.Audit.PostgresDSN = getEnv("SLIMLO_AUDIT_DSN", c.Audit.PostgresDSN)
	c.Audit.Enabled = getEnvBool("SLIMLO_AUDIT_ENABLED", c.Audit.Enabled)

	c.PubSub.Enabled = getEnvBool("SLIMLO_PUBSUB_ENABLED", c.PubSub.Enabled)
	c.PubSub.ProjectID = getEnv("SLIMLO_GCP_PROJECT_ID", c.PubSub.ProjectID)
	c.PubSub.TopicID = getEnv("SLIMLO_PUBSUB_TOPIC", c.PubSub.TopicID)

	c.Tasks.Enabled = getEnvBool("SLIMLO_CLOUD_TASKS_ENABLED", c.Tasks.Enabled)
	c.Tasks.ProjectID = getEnv("SLIMLO_GCP_PROJECT_ID", c.Tasks.ProjectID)
	c.Tasks.LocationID = getEnv("SLIMLO_CLOUD_TASKS_LOCATION", c.Tasks.LocationID)
	c.Tasks.QueueID = getEnv("SLIMLO_CLOUD_TASKS_QUEUE", c.Tasks.QueueID)

	c.Identity.Enabled = getEnvBool("SLIMLO_IDENTITY_ENABLED", c.Identity.Enabled)
	c.Identity.SocketPath = getEnv("SLIMLO_SPIFFE_SOCKET", c.Identity.SocketPath)
	c.Identity.TrustDomain = getEnv("SLIMLO_TRUST_DOMAIN", c.Identity.TrustDomain)
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Pool.WorkerPath == "" {
		c.Pool.WorkerPath = "slimlo-worker"
	}
	if c.Pool.MaxWorkers == 0 {
		c.Pool.MaxWorkers = 4
	}
	if c.Pool.ConversionTimeoutSec == 0 {
		c.Pool.ConversionTimeoutSec = 120
	}
	if c.Pool.GracefulShutdownSec == 0 {
		c.Pool.GracefulShutdownSec = 5
	}
	if c.Pool.MaintenanceIntervalSec == 0 {
		c.Pool.MaintenanceIntervalSec = 60
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 120
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 64 * 1024 * 1024
	}
	if c.Cache.TTLSec == 0 {
		c.Cache.TTLSec = 3600
	}
	if c.PubSub.TopicID == "" {
		c.PubSub.TopicID = "slimlo-events"
	}
	if c.Tasks.LocationID == "" {
		c.Tasks.LocationID = "us-central1"
	}
	if c.Tasks.QueueID == "" {
		c.Tasks.QueueID = "slimlo-webhooks"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
