package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// AppConfig holds application settings from TOML file
type AppConfig struct {
	App struct {
		Name         string  `toml:"name"`
		Locale       string  `toml:"locale"`
		AllowedChats []int64 `toml:"allowed_chats"`
	} `toml:"app"`

	Engine struct {
		DescriptionMinLength int `toml:"description_min_length"`
		MaxCandidates        int `toml:"max_candidates"`
	} `toml:"engine"`

	Digest struct {
		Time string `toml:"time"`
	} `toml:"digest"`

	Scheduler struct {
		CheckIntervalSeconds int    `toml:"check_interval_seconds"`
		Timezone             string `toml:"timezone"`
	} `toml:"scheduler"`

	HTTP struct {
		Port int `toml:"port"`
	} `toml:"http"`

	Tilda struct {
		BaseURL        string `toml:"base_url"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
		PageBaseURL    string `toml:"page_base_url"`
		HomeURL        string `toml:"home_url"`
	} `toml:"tilda"`

	Sheets struct {
		SpreadsheetID string `toml:"spreadsheet_id"`
		Range         string `toml:"range"`
	} `toml:"sheets"`

	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

// Secrets are read from the environment only
type Secrets struct {
	TelegramBotToken      string `env:"TG_BOT_TOKEN"`
	PostgresDSN           string `env:"PG_DSN"`
	TildaPublicKey        string `env:"TILDA_PUBLIC_KEY"`
	TildaSecretKey        string `env:"TILDA_SECRET_KEY"`
	TildaProjectID        string `env:"TILDA_PROJECT_ID"`
	JWTSecret             string `env:"JWT_SECRET"`
	GoogleCredentialsPath string `env:"GOOGLE_CREDENTIALS_PATH"`
}

// Config holds all configuration for the application
type Config struct {
	Secrets

	// Application settings from TOML
	App AppConfig

	// Derived fields
	Location     *time.Location
	DigestHour   int
	DigestMinute int
}

// Load reads configuration from environment variables and TOML file
func Load() (*Config, error) {
	appCfg, err := loadAppConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}

	cfg := &Config{App: *appCfg}
	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Allow environment variable overrides for some settings
	if envTZ := os.Getenv("TZ"); envTZ != "" {
		cfg.App.Scheduler.Timezone = envTZ
	}

	if envDigest := os.Getenv("DIGEST_TIME"); envDigest != "" {
		cfg.App.Digest.Time = envDigest
	}

	if envPortStr := os.Getenv("HTTP_PORT"); envPortStr != "" {
		if port, err := strconv.Atoi(envPortStr); err == nil {
			cfg.App.HTTP.Port = port
		}
	}

	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		cfg.App.Logging.Level = envLevel
	}

	applyDefaults(&cfg.App)

	// Validate required fields
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TG_BOT_TOKEN is required")
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("PG_DSN is required")
	}

	location, err := time.LoadLocation(cfg.App.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.App.Scheduler.Timezone, err)
	}
	cfg.Location = location

	digestAt, err := time.Parse("15:04", cfg.App.Digest.Time)
	if err != nil {
		return nil, fmt.Errorf("invalid digest time %s: %w", cfg.App.Digest.Time, err)
	}
	cfg.DigestHour, cfg.DigestMinute = digestAt.Hour(), digestAt.Minute()

	return cfg, nil
}

func applyDefaults(c *AppConfig) {
	if c.App.Locale == "" {
		c.App.Locale = "ru"
	}
	if c.Engine.DescriptionMinLength <= 0 {
		c.Engine.DescriptionMinLength = 80
	}
	if c.Engine.MaxCandidates <= 0 {
		c.Engine.MaxCandidates = 5
	}
	if c.Digest.Time == "" {
		c.Digest.Time = "10:00"
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "Europe/Moscow"
	}
	if c.Scheduler.CheckIntervalSeconds <= 0 {
		c.Scheduler.CheckIntervalSeconds = 60
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Tilda.BaseURL == "" {
		c.Tilda.BaseURL = "https://api.tildacdn.info/v1"
	}
	if c.Tilda.TimeoutSeconds <= 0 {
		c.Tilda.TimeoutSeconds = 30
	}
	if c.Sheets.Range == "" {
		c.Sheets.Range = "A:J"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// loadAppConfig loads application configuration from TOML file
func loadAppConfig() (*AppConfig, error) {
	configPath := getEnvWithDefault("APP_CONFIG_PATH", "config/app.toml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config AppConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return &config, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsChatAllowed checks if a chat ID is in the allowed chats list
// If AllowedChats is empty, all chats are allowed
func (c *Config) IsChatAllowed(chatID int64) bool {
	if len(c.App.App.AllowedChats) == 0 {
		return true
	}

	for _, allowedID := range c.App.App.AllowedChats {
		if allowedID == chatID {
			return true
		}
	}

	return false
}

// TildaEnabled reports whether page publishing credentials are configured
func (c *Config) TildaEnabled() bool {
	return c.TildaPublicKey != "" && c.TildaSecretKey != "" && c.TildaProjectID != ""
}

// SheetsEnabled reports whether the spreadsheet mirror is configured
func (c *Config) SheetsEnabled() bool {
	return c.App.Sheets.SpreadsheetID != "" && c.GoogleCredentialsPath != ""
}
