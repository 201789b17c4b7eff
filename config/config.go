// Package config loads hall settings. Later layers override earlier ones:
// built-in defaults, the JSON config file, a .env file in the working
// directory, then HALL_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"hallbook/storage"
)

const EnvPrefix = "HALL"

type Config struct {
	DatabasePath     string   `json:"database_path" envconfig:"DATABASE_PATH"`
	DefaultClub      string   `json:"default_club" envconfig:"DEFAULT_CLUB"`
	DefaultIncrement int      `json:"default_increment" envconfig:"DEFAULT_INCREMENT" validate:"gte=5,lte=240"`
	LogLevel         string   `json:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	SweepInterval    Duration `json:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
	Notify           Notify   `json:"notify" envconfig:"NOTIFY"`
}

type Notify struct {
	WebhookURL     string `json:"webhook_url" envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret  string `json:"webhook_secret" envconfig:"WEBHOOK_SECRET"`
	AMQPURL        string `json:"amqp_url" envconfig:"AMQP_URL" validate:"omitempty,url"`
	AMQPExchange   string `json:"amqp_exchange" envconfig:"AMQP_EXCHANGE"`
	TelegramToken  string `json:"telegram_token" envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `json:"telegram_chat_id" envconfig:"TELEGRAM_CHAT_ID"`
	// TelegramEvents limits the chat to these event types; empty sends all.
	TelegramEvents []string `json:"telegram_events" envconfig:"TELEGRAM_EVENTS"`
}

// Duration reads "15m" style strings from JSON and the environment.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q", string(b))
	}
	d.Duration = parsed
	return nil
}

func Defaults() Config {
	return Config{
		DefaultIncrement: 30,
		LogLevel:         "warn",
		SweepInterval:    Duration{15 * time.Minute},
		Notify: Notify{
			AMQPExchange: "hallbook.events",
		},
	}
}

// Load reads the default config file and ./.env. Missing files are skipped.
func Load() (Config, error) {
	path, err := storage.ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path, ".env")
}

func LoadFrom(jsonPath, envPath string) (Config, error) {
	cfg := Defaults()
	if err := mergeFile(jsonPath, &cfg); err != nil {
		return Config{}, err
	}
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", envPath, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.SweepInterval.Duration <= 0 {
		return Config{}, fmt.Errorf("invalid config: sweep_interval must be positive, got %s", cfg.SweepInterval)
	}
	return cfg, nil
}

func mergeFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("config path is a directory: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ResolveDatabasePath falls back to the per-user database.
func (c Config) ResolveDatabasePath() (string, error) {
	if c.DatabasePath != "" {
		return c.DatabasePath, nil
	}
	return storage.DatabasePath()
}
