package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultOnDemandMaxAge is the retention threshold of an on-demand sweep when none is configured
const DefaultOnDemandMaxAge = 30 * time.Minute

// Config holds the configuration for all services
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Upload      UploadConfig      `yaml:"upload"`
	Compression CompressionConfig `yaml:"compression"`
	Retention   RetentionConfig   `yaml:"retention"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StorageConfig holds artifact storage configuration
type StorageConfig struct {
	Type      string `yaml:"type"` // local
	LocalPath string `yaml:"local_path"`
}

// UploadConfig bounds what upload intake accepts
type UploadConfig struct {
	MaxFileSize        int64 `yaml:"max_file_size"`
	MaxFilesPerRequest int   `yaml:"max_files"`
}

// CompressionConfig configures the external engine
type CompressionConfig struct {
	Binary         string        `yaml:"binary"`
	Timeout        time.Duration `yaml:"timeout"`
	DefaultQuality string        `yaml:"default_quality"`
}

// RetentionConfig configures the sweeper. DeleteAfter has no default on purpose:
// zero means "not configured".
type RetentionConfig struct {
	DeleteAfter time.Duration `yaml:"delete_after"`
	Interval    time.Duration `yaml:"interval"`
	Periodic    bool          `yaml:"periodic"`
	Concurrency int           `yaml:"concurrency"`
}

// DatabaseConfig holds job-history database settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, postgres
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MetricsConfig toggles Prometheus instrumentation
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		Storage: StorageConfig{
			Type:      "local",
			LocalPath: "./temp",
		},
		Upload: UploadConfig{
			MaxFileSize:        100 * 1024 * 1024,
			MaxFilesPerRequest: 3,
		},
		Compression: CompressionConfig{
			Binary:         "gs",
			Timeout:        2 * time.Minute,
			DefaultQuality: "/ebook",
		},
		Retention: RetentionConfig{
			Interval:    10 * time.Minute,
			Periodic:    true,
			Concurrency: 8,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "./data/pdfshrink.db",
			Host:    "localhost",
			Port:    5432,
			User:    "pdfshrink",
			DBName:  "pdfshrink",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "pdfshrink",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// LoadFromFile reads a YAML file over the defaults, then applies environment overrides
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)

	c.Storage.Type = getEnv("STORAGE_TYPE", c.Storage.Type)
	c.Storage.LocalPath = getEnv("STORAGE_LOCAL_PATH", c.Storage.LocalPath)

	c.Upload.MaxFileSize = getEnvInt64("MAX_FILE_SIZE", c.Upload.MaxFileSize)
	c.Upload.MaxFilesPerRequest = getEnvInt("MAX_FILES", c.Upload.MaxFilesPerRequest)

	c.Compression.Binary = getEnv("GS_BINARY", c.Compression.Binary)
	c.Compression.Timeout = getEnvDuration("COMPRESSION_TIMEOUT", c.Compression.Timeout)
	c.Compression.DefaultQuality = getEnv("DEFAULT_QUALITY", c.Compression.DefaultQuality)

	if minutes := getEnvInt("DELETE_AFTER_MINUTES", 0); minutes > 0 {
		c.Retention.DeleteAfter = time.Duration(minutes) * time.Minute
	}
	c.Retention.Interval = getEnvDuration("CLEANUP_INTERVAL", c.Retention.Interval)
	c.Retention.Periodic = getEnvBool("CLEANUP_PERIODIC", c.Retention.Periodic)
	c.Retention.Concurrency = getEnvInt("CLEANUP_CONCURRENCY", c.Retention.Concurrency)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Metrics.Enabled = getEnvBool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Namespace = getEnv("METRICS_NAMESPACE", c.Metrics.Namespace)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.Upload.MaxFileSize)
	}
	if c.Upload.MaxFilesPerRequest <= 0 {
		return fmt.Errorf("max files per request must be positive, got %d", c.Upload.MaxFilesPerRequest)
	}
	if c.Compression.Timeout <= 0 {
		return fmt.Errorf("compression timeout must be positive, got %s", c.Compression.Timeout)
	}
	if c.Retention.Periodic {
		if c.Retention.DeleteAfter <= 0 {
			return fmt.Errorf("periodic cleanup requires DELETE_AFTER_MINUTES to be set")
		}
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("cleanup interval must be positive, got %s", c.Retention.Interval)
		}
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}

// OnDemandMaxAge is the threshold used when a sweep is requested explicitly
func (r *RetentionConfig) OnDemandMaxAge() time.Duration {
	if r.DeleteAfter > 0 {
		return r.DeleteAfter
	}
	return DefaultOnDemandMaxAge
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseURL returns a PostgreSQL connection string
func (d *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisAddr returns the Redis address
func (r *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SetupLogging configures the global zerolog logger
func (l *LoggingConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || l.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if l.Format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
