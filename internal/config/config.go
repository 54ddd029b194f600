package config

import (
	"errors"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// CompletionMode selects how command completion reports are applied.
const (
	// CompletionModeLegacy applies a completion scoped by id+device only, so a
	// repeated report overwrites the terminal state.
	CompletionModeLegacy = "legacy"
	// CompletionModeClaim additionally requires the command to still be
	// pending, so a repeated report gets not-found.
	CompletionModeClaim = "claim"
)

// Config holds server configuration.
type Config struct {
	HTTPAddr    string        `env:"HTTP_ADDR" yaml:"http_addr"`
	DatabaseURL string        `env:"DATABASE_URL" yaml:"database_url"`
	JWTSecret   string        `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
	TokenTTL    time.Duration `env:"AUTH_TOKEN_TTL" yaml:"token_ttl"`
	BcryptCost  int           `env:"AUTH_BCRYPT_COST" yaml:"bcrypt_cost"`

	DeviceAuth DeviceAuth `envPrefix:"DEVICE_AUTH_" yaml:"device_auth"`
	Commands   Commands   `envPrefix:"COMMANDS_" yaml:"commands"`
	MQTT       MQTT       `envPrefix:"MQTT_" yaml:"mqtt"`
	Influx     Influx     `envPrefix:"INFLUX_" yaml:"influx"`

	AlarmWebhookURL string `env:"ALARM_WEBHOOK_URL" yaml:"alarm_webhook_url"`
}

// DeviceAuth configures device identity verification.
type DeviceAuth struct {
	// RequireToken switches device-facing endpoints from trusting the
	// caller-supplied device id to requiring the capability token minted at
	// registration.
	RequireToken bool `env:"REQUIRE_TOKEN" yaml:"require_token"`
}

// Commands configures the command queue.
type Commands struct {
	CompletionMode string `env:"COMPLETION_MODE" yaml:"completion_mode"`
	// PendingExpiry fails pending commands older than the window. Zero
	// disables the janitor.
	PendingExpiry time.Duration `env:"PENDING_EXPIRY" yaml:"pending_expiry"`
	// Retention prunes terminal commands older than the window. Zero keeps
	// them forever.
	Retention time.Duration `env:"RETENTION" yaml:"retention"`
}

// MQTT configures the optional telemetry broker bridge.
type MQTT struct {
	BrokerURL string `env:"BROKER_URL" yaml:"broker_url"`
	Username  string `env:"USERNAME" yaml:"username"`
	Password  string `env:"PASSWORD" yaml:"password"`
	ClientID  string `env:"CLIENT_ID" yaml:"client_id"`
	Topic     string `env:"TOPIC" yaml:"topic"`
}

// Influx configures the optional telemetry mirror.
type Influx struct {
	URL    string `env:"URL" yaml:"url"`
	Token  string `env:"TOKEN" yaml:"token"`
	Org    string `env:"ORG" yaml:"org"`
	Bucket string `env:"BUCKET" yaml:"bucket"`
}

// Load builds configuration from defaults, an optional yaml file named by
// CONFIG_FILE, and environment variables (highest precedence).
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func defaults() Config {
	return Config{
		HTTPAddr:   ":8080",
		TokenTTL:   7 * 24 * time.Hour,
		BcryptCost: 10,
		Commands: Commands{
			CompletionMode: CompletionModeLegacy,
		},
		MQTT: MQTT{
			ClientID: "greenhouse-cloud",
			Topic:    "greenhouse/+/telemetry",
		},
	}
}

// Validate checks required fields and mode values.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL required")
	}
	if c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET required")
	}
	switch c.Commands.CompletionMode {
	case CompletionModeLegacy, CompletionModeClaim:
	default:
		return errors.New("config: completion_mode must be legacy or claim")
	}
	if c.TokenTTL <= 0 {
		return errors.New("config: token_ttl must be positive")
	}
	return nil
}
