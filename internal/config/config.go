package config

import (
	"errors"
	"fmt"
	"os"

	"reswatch/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Resy       ResyConfig       `yaml:"resy"`
	Redis      RedisConfig      `yaml:"redis"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type SchedulerConfig struct {
	TickIntervalSec        int `yaml:"tick_interval_sec"`
	MaxConcurrent          int `yaml:"max_concurrent"`
	DefaultPollIntervalSec int `yaml:"default_poll_interval_sec"`
}

type ResyConfig struct {
	BaseURL    string  `yaml:"base_url"`
	TimeoutSec int     `yaml:"timeout_sec"`
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
}

type RedisConfig struct {
	Address      string `yaml:"address"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	EventChannel string `yaml:"event_channel"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type GoogleConfig struct {
	CredentialsFile      string `yaml:"credentials_file"`
	HistorySpreadsheetID string `yaml:"history_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; the environment may already be populated.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Substitute ${VAR} references before parsing.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Scheduler.MaxConcurrent < 1 {
		return errors.New("scheduler max_concurrent must be positive")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}
	if c.Google.HistorySpreadsheetID != "" && c.Google.CredentialsFile == "" {
		return errors.New("google credentials file is required for sheets sync")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Scheduler.TickIntervalSec == 0 {
		c.Scheduler.TickIntervalSec = models.DefaultTickIntervalSec
	}
	if c.Scheduler.MaxConcurrent == 0 {
		c.Scheduler.MaxConcurrent = models.DefaultMaxConcurrent
	}
	if c.Scheduler.DefaultPollIntervalSec == 0 {
		c.Scheduler.DefaultPollIntervalSec = models.DefaultPollIntervalSec
	}

	if c.Resy.BaseURL == "" {
		c.Resy.BaseURL = "https://api.resy.com"
	}
	if c.Resy.TimeoutSec == 0 {
		c.Resy.TimeoutSec = 10
	}
	if c.Resy.RPS == 0 {
		c.Resy.RPS = 5
	}
	if c.Resy.Burst == 0 {
		c.Resy.Burst = 10
	}

	if c.Redis.EventChannel == "" {
		c.Redis.EventChannel = "reswatch:events"
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Enabled && len(c.API.Auth.APIKeys) > 0 {
		c.API.Auth.Enabled = true
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
