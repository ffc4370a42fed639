package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Dataset       DatasetConfig       `yaml:"dataset"`
	ObjectStorage ObjectStorageConfig `yaml:"object_storage"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects and configures the record store backend.
type StorageConfig struct {
	Backend         string   `yaml:"backend"`
	SQLitePath      string   `yaml:"sqlite_path"`
	PostgresDSN     string   `yaml:"-"` // env-only, carries credentials
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// DatasetConfig locates the read-only CSV files (movies.csv, characters.csv).
type DatasetConfig struct {
	Dir string `yaml:"dir"`
}

// ObjectStorageConfig contains settings for the bucket holding the
// conversation and line logs. An empty Bucket keeps the logs in Dataset.Dir.
type ObjectStorageConfig struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	UseSSL    *bool  `yaml:"use_ssl"`
	AccessKey string `yaml:"-"` // env-only
	SecretKey string `yaml:"-"` // env-only
}

// IngestConfig limits the conversation ingest rate. RateLimit is requests
// per second; zero disables limiting.
type IngestConfig struct {
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// A .env file (CINELINES_ENV_FILE, default ".env") is loaded into the
// environment first; variables already set win over the file.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("CINELINES_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := newDefaults()

	// Determine config path
	configPath := getEnv("CINELINES_CONFIG_PATH", "config/cinelines.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// Load YAML file (file must exist for this function)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Storage: StorageConfig{
			Backend:         BackendMemory,
			SQLitePath:      "data/cinelines.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Dataset: DatasetConfig{
			Dir: "data",
		},
		Ingest: IngestConfig{
			RateLimit: 10,
			Burst:     20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("CINELINES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("CINELINES_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("CINELINES_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("CINELINES_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Storage
	if v := os.Getenv("CINELINES_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("CINELINES_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("CINELINES_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	} else if dsn := postgresDSNFromParts(); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}

	// Dataset
	if v := os.Getenv("CINELINES_DATASET_DIR"); v != "" {
		cfg.Dataset.Dir = v
	}

	// Object storage
	if v := os.Getenv("CINELINES_S3_BUCKET"); v != "" {
		cfg.ObjectStorage.Bucket = v
	}
	if v := os.Getenv("CINELINES_S3_ENDPOINT"); v != "" {
		cfg.ObjectStorage.Endpoint = v
	}
	if v := os.Getenv("CINELINES_S3_REGION"); v != "" {
		cfg.ObjectStorage.Region = v
	}
	if v := os.Getenv("CINELINES_S3_PREFIX"); v != "" {
		cfg.ObjectStorage.Prefix = v
	}
	if v := os.Getenv("CINELINES_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.ObjectStorage.UseSSL = &useSSL
	}
	if v := os.Getenv("CINELINES_S3_ACCESS_KEY"); v != "" {
		cfg.ObjectStorage.AccessKey = v
	}
	if v := os.Getenv("CINELINES_S3_SECRET_KEY"); v != "" {
		cfg.ObjectStorage.SecretKey = v
	}

	// Ingest
	if v := os.Getenv("CINELINES_INGEST_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ingest.RateLimit = f
		}
	}
	if v := os.Getenv("CINELINES_INGEST_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Burst = n
		}
	}

	// Metrics
	if v := os.Getenv("CINELINES_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}

	// Log
	if v := os.Getenv("CINELINES_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CINELINES_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// postgresDSNFromParts builds a DSN from the conventional POSTGRES_* variables.
// It returns "" unless POSTGRES_SERVER is set.
func postgresDSNFromParts() string {
	server := os.Getenv("POSTGRES_SERVER")
	if server == "" {
		return ""
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(server, getEnv("POSTGRES_PORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "postgres"),
		RawQuery: "sslmode=" + getEnv("POSTGRES_SSLMODE", "disable"),
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

// validate checks that the configuration is usable.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	switch c.Storage.Backend {
	case BackendMemory:
		if c.Dataset.Dir == "" {
			return errors.New("dataset dir is required for the memory backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("CINELINES_POSTGRES_DSN or POSTGRES_SERVER is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Ingest.RateLimit < 0 {
		return errors.New("ingest rate_limit must not be negative")
	}
	if c.Ingest.RateLimit > 0 && c.Ingest.Burst < 1 {
		return errors.New("ingest burst must be at least 1 when rate limiting is enabled")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path %q must start with /", c.Metrics.Path)
	}

	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
