package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// unsetForTest clears key for the duration of the test and restores it after.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadDefaultsWhenNothingExists(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultIncrement != 30 || cfg.LogLevel != "warn" || cfg.SweepInterval.Duration != 15*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Notify.AMQPExchange != "hallbook.events" {
		t.Fatalf("exchange default = %q", cfg.Notify.AMQPExchange)
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "config.json", `{
  "default_club": "file-club",
  "default_increment": 15,
  "log_level": "warn",
  "sweep_interval": "1h",
  "notify": {"webhook_url": "https://hooks.example.com/hall", "telegram_chat_id": 7}
}`)
	envPath := writeFile(t, dir, ".env", "HALL_LOG_LEVEL=debug\nHALL_NOTIFY_TELEGRAM_EVENTS=booking.released,booking.claimed\n")

	unsetForTest(t, "HALL_LOG_LEVEL")
	unsetForTest(t, "HALL_NOTIFY_TELEGRAM_EVENTS")
	t.Setenv("HALL_DEFAULT_CLUB", "env-club")

	cfg, err := LoadFrom(jsonPath, envPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultClub != "env-club" {
		t.Fatalf("environment should win over the file, got %q", cfg.DefaultClub)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf(".env should win over the file, got %q", cfg.LogLevel)
	}
	if cfg.DefaultIncrement != 15 || cfg.SweepInterval.Duration != time.Hour {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/hall" || cfg.Notify.TelegramChatID != 7 {
		t.Fatalf("notify section lost: %+v", cfg.Notify)
	}
	if len(cfg.Notify.TelegramEvents) != 2 || cfg.Notify.TelegramEvents[1] != "booking.claimed" {
		t.Fatalf("telegram events = %v", cfg.Notify.TelegramEvents)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "config.json", `{"default_increment": 2}`)
	if _, err := LoadFrom(jsonPath, ""); err == nil {
		t.Fatal("increment below 5 should be rejected")
	}

	jsonPath = writeFile(t, dir, "zero.json", `{"sweep_interval": "0s"}`)
	if _, err := LoadFrom(jsonPath, ""); err == nil {
		t.Fatal("zero sweep interval should be rejected")
	}

	t.Setenv("HALL_SWEEP_INTERVAL", "-5m")
	if _, err := LoadFrom("", ""); err == nil {
		t.Fatal("negative sweep interval should be rejected")
	}

	t.Setenv("HALL_SWEEP_INTERVAL", "soon")
	if _, err := LoadFrom("", ""); err == nil {
		t.Fatal("bad duration should be rejected")
	}
}
