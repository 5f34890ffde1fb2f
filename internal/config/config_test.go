package config

import (
	"os"
	"testing"
)

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		_ = os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range vars {
			_ = os.Unsetenv(k)
		}
	})
}

func TestLoad(t *testing.T) {
	setEnv(t, map[string]string{
		"TG_BOT_TOKEN":     "test_token",
		"PG_DSN":           "test_dsn",
		"JWT_SECRET":       "test_jwt_secret",
		"TILDA_PUBLIC_KEY": "pub",
		"TILDA_SECRET_KEY": "sec",
		"TILDA_PROJECT_ID": "42",
		"APP_CONFIG_PATH":  "../../config/app.toml",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Test required fields
	if cfg.TelegramBotToken != "test_token" {
		t.Errorf("Expected TelegramBotToken to be 'test_token', got %s", cfg.TelegramBotToken)
	}
	if cfg.PostgresDSN != "test_dsn" {
		t.Errorf("Expected PostgresDSN to be 'test_dsn', got %s", cfg.PostgresDSN)
	}
	if cfg.JWTSecret != "test_jwt_secret" {
		t.Errorf("Expected JWTSecret to be 'test_jwt_secret', got %s", cfg.JWTSecret)
	}
	if !cfg.TildaEnabled() {
		t.Error("Expected Tilda to be enabled")
	}
	if cfg.SheetsEnabled() {
		t.Error("Expected Sheets to be disabled without spreadsheet id")
	}

	// Test TOML loaded values
	if cfg.App.Engine.DescriptionMinLength != 80 {
		t.Errorf("Expected DescriptionMinLength to be 80, got %d", cfg.App.Engine.DescriptionMinLength)
	}
	if cfg.App.Engine.MaxCandidates != 5 {
		t.Errorf("Expected MaxCandidates to be 5, got %d", cfg.App.Engine.MaxCandidates)
	}
	if cfg.App.Scheduler.Timezone != "Europe/Moscow" {
		t.Errorf("Expected Timezone to be 'Europe/Moscow', got %s", cfg.App.Scheduler.Timezone)
	}
	if cfg.App.Tilda.BaseURL != "https://api.tildacdn.info/v1" {
		t.Errorf("Expected Tilda base url, got %s", cfg.App.Tilda.BaseURL)
	}
	if cfg.App.App.Locale != "ru" {
		t.Errorf("Expected locale 'ru', got %s", cfg.App.App.Locale)
	}

	// Test derived fields
	if cfg.Location == nil {
		t.Error("Expected location to be parsed")
	}
	if cfg.DigestHour != 10 || cfg.DigestMinute != 0 {
		t.Errorf("Expected digest at 10:00, got %02d:%02d", cfg.DigestHour, cfg.DigestMinute)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"TG_BOT_TOKEN":    "test_token",
		"PG_DSN":          "test_dsn",
		"APP_CONFIG_PATH": "../../config/app.toml",
		"TZ":              "UTC",
		"DIGEST_TIME":     "09:30",
		"HTTP_PORT":       "9090",
		"LOG_LEVEL":       "debug",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.App.Scheduler.Timezone != "UTC" {
		t.Errorf("Expected Timezone to be 'UTC' (env override), got %s", cfg.App.Scheduler.Timezone)
	}
	if cfg.DigestHour != 9 || cfg.DigestMinute != 30 {
		t.Errorf("Expected digest at 09:30 (env override), got %02d:%02d", cfg.DigestHour, cfg.DigestMinute)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090 (env override), got %d", cfg.App.HTTP.Port)
	}
	if cfg.App.Logging.Level != "debug" {
		t.Errorf("Expected log level 'debug' (env override), got %s", cfg.App.Logging.Level)
	}
	if cfg.TildaEnabled() {
		t.Error("Expected Tilda to be disabled without keys")
	}
}

func TestLoadInvalidDigestTime(t *testing.T) {
	setEnv(t, map[string]string{
		"TG_BOT_TOKEN":    "test_token",
		"PG_DSN":          "test_dsn",
		"APP_CONFIG_PATH": "../../config/app.toml",
		"DIGEST_TIME":     "25:99",
	})

	if _, err := Load(); err == nil {
		t.Error("Expected error for invalid digest time")
	}
}

func TestLoadMissingRequiredEnv(t *testing.T) {
	_ = os.Unsetenv("TG_BOT_TOKEN")
	_ = os.Unsetenv("PG_DSN")
	setEnv(t, map[string]string{"APP_CONFIG_PATH": "../../config/app.toml"})

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required environment variables are missing")
	}
}

func TestIsChatAllowed(t *testing.T) {
	cfg := &Config{}
	if !cfg.IsChatAllowed(1) {
		t.Error("Expected every chat to be allowed with an empty list")
	}

	cfg.App.App.AllowedChats = []int64{-100, 7}
	if !cfg.IsChatAllowed(-100) || cfg.IsChatAllowed(8) {
		t.Error("Expected only listed chats to be allowed")
	}
}
