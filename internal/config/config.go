// Package config loads the application's YAML configuration with
// environment variable overrides.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	AI         AIConfig         `yaml:"ai"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Reminders  RemindersConfig  `yaml:"reminders"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings for the scan rate limiter
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// AIConfig holds AWS Bedrock field-extraction settings
type AIConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ModelID        string  `yaml:"model_id"`
	Region         string  `yaml:"region"`
	Workers        int     `yaml:"workers"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// Timeout returns the per-item AI call timeout as a duration
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExtractionConfig holds pipeline tuning knobs
type ExtractionConfig struct {
	PromoThreshold      float64 `yaml:"promo_threshold"`
	KeywordThreshold    float64 `yaml:"keyword_threshold"`
	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold"` // 0 disables auto-accept
	ScanBatchLimit      int     `yaml:"scan_batch_limit"`
	ScanRatePerMinute   int     `yaml:"scan_rate_per_minute"`
}

// RemindersConfig holds reminder scheduler settings
type RemindersConfig struct {
	LeadTimesDays       []int `yaml:"lead_times_days"`
	RunIntervalMinutes  int   `yaml:"run_interval_minutes"`
}

// RunInterval returns the worker's scheduling interval as a duration
func (c RemindersConfig) RunInterval() time.Duration {
	return time.Duration(c.RunIntervalMinutes) * time.Minute
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.AI.ModelID == "" {
		cfg.AI.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.AI.Region == "" {
		cfg.AI.Region = "us-east-1"
	}
	if cfg.AI.Workers == 0 {
		cfg.AI.Workers = 5
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 1024
	}
	if cfg.Extraction.PromoThreshold == 0 {
		cfg.Extraction.PromoThreshold = 3
	}
	if cfg.Extraction.KeywordThreshold == 0 {
		cfg.Extraction.KeywordThreshold = 1
	}
	if cfg.Extraction.ScanBatchLimit == 0 {
		cfg.Extraction.ScanBatchLimit = 10
	}
	if cfg.Extraction.ScanRatePerMinute == 0 {
		cfg.Extraction.ScanRatePerMinute = 30
	}
	if len(cfg.Reminders.LeadTimesDays) == 0 {
		cfg.Reminders.LeadTimesDays = []int{7, 3, 1}
	}
	if cfg.Reminders.RunIntervalMinutes == 0 {
		cfg.Reminders.RunIntervalMinutes = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if modelID := os.Getenv("BEDROCK_MODEL_ID"); modelID != "" {
		cfg.AI.ModelID = modelID
		cfg.AI.Enabled = true
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AI.Region = region
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}
