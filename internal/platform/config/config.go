package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the process configuration. Values come from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	LogLevel    string `yaml:"log_level"`

	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Refresh RefreshConfig `yaml:"refresh"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
	// Username enables Basic auth on the control API when non-empty.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	// CacheBackend overrides Backend for estimate caches only.
	CacheBackend string      `yaml:"cache_backend" validate:"omitempty,oneof=memory sqlite postgres redis"`
	DatabaseURL  string      `yaml:"database_url"`
	SQLitePath   string      `yaml:"sqlite_path"`
	Redis        RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type RefreshConfig struct {
	UpstreamTimeout    time.Duration `yaml:"upstream_timeout" validate:"gt=0"`
	UpstreamRetries    int           `yaml:"upstream_retries" validate:"gte=0,lte=10"`
	MissingConfigRetry time.Duration `yaml:"missing_config_retry" validate:"gt=0"`
	PastDueRetry       time.Duration `yaml:"past_due_retry" validate:"gte=0"`
	SweepInterval      time.Duration `yaml:"sweep_interval" validate:"gte=0"`
	Workers            int           `yaml:"workers" validate:"gt=0"`
	StalenessMode      string        `yaml:"staleness_mode" validate:"oneof=first earliest"`
}

// EffectiveCacheBackend returns the backend used for estimate caches.
func (s StorageConfig) EffectiveCacheBackend() string {
	if s.CacheBackend != "" {
		return s.CacheBackend
	}
	return s.Backend
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Environment: "production",
		LogLevel:    "info",
		HTTP:        HTTPConfig{Addr: ":8080"},
		Storage: StorageConfig{
			Backend:    BackendMemory,
			SQLitePath: "transitclock.db",
			Redis:      RedisConfig{Addr: "localhost:6379"},
		},
		Refresh: RefreshConfig{
			UpstreamTimeout:    15 * time.Second,
			UpstreamRetries:    2,
			MissingConfigRetry: 15 * time.Second,
			PastDueRetry:       time.Minute,
			SweepInterval:      15 * time.Minute,
			Workers:            4,
			StalenessMode:      "first",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// TRANSITCLOCK_CONFIG is consulted; a missing file is an error only when a
// path was given.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("TRANSITCLOCK_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field requirements.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var missing []string
	usesPostgres := c.Storage.Backend == BackendPostgres || c.Storage.CacheBackend == BackendPostgres
	if usesPostgres && c.Storage.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	usesSQLite := c.Storage.Backend == BackendSQLite || c.Storage.CacheBackend == BackendSQLite
	if usesSQLite && c.Storage.SQLitePath == "" {
		missing = append(missing, "SQLITE_PATH")
	}
	if c.Storage.CacheBackend == BackendRedis && c.Storage.Redis.Addr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if c.HTTP.Username != "" && c.HTTP.Password == "" {
		missing = append(missing, "CONTROL_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.HTTP.Addr, "HTTP_ADDR")
	setString(&cfg.HTTP.Username, "CONTROL_USERNAME")
	setString(&cfg.HTTP.Password, "CONTROL_PASSWORD")
	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.CacheBackend, "CACHE_BACKEND")
	setString(&cfg.Storage.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	setString(&cfg.Storage.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Storage.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Refresh.StalenessMode, "STALENESS_MODE")

	return errors.Join(
		setInt(&cfg.Storage.Redis.DB, "REDIS_DB"),
		setInt(&cfg.Refresh.UpstreamRetries, "UPSTREAM_RETRIES"),
		setInt(&cfg.Refresh.Workers, "WORKERS"),
		setDuration(&cfg.Refresh.UpstreamTimeout, "UPSTREAM_TIMEOUT", "15s"),
		setDuration(&cfg.Refresh.MissingConfigRetry, "MISSING_CONFIG_RETRY", "15s"),
		setDuration(&cfg.Refresh.PastDueRetry, "PAST_DUE_RETRY", "1m"),
		setDuration(&cfg.Refresh.SweepInterval, "SWEEP_INTERVAL", "15m"),
	)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key, example string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a duration (e.g. %s): %w", key, example, err)
	}
	*dst = d
	return nil
}
