// Package config loads the process configuration from the environment.
//
// The Config value is built once in cmd/server and passed down explicitly;
// nothing in the module reads environment variables on its own.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds every setting the server needs.
type Config struct {
	Port      int    `env:"PORT" envDefault:"3000" validate:"min=1,max=65535"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`

	DBPath string `env:"DB_PATH" envDefault:"data/taskmanager.db" validate:"required"`

	// JWTSecret signs session tokens.
	JWTSecret  string        `env:"JWT_SECRET,required" validate:"min=16"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"0s" validate:"min=0"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"8" validate:"min=4,max=31"`

	// An empty SendGridAPIKey disables outbound mail.
	SendGridAPIKey  string `env:"SENDGRID_API_KEY"`
	SendGridBaseURL string `env:"SENDGRID_BASE_URL" envDefault:"https://api.sendgrid.com" validate:"url"`
	MailFrom        string `env:"MAIL_FROM" validate:"omitempty,email"`

	// MailTimeout bounds one delivery attempt, including the response.
	MailTimeout time.Duration `env:"MAIL_TIMEOUT" envDefault:"10s" validate:"min=1s"`

	AvatarMaxBytes    int64 `env:"AVATAR_MAX_BYTES" envDefault:"1000000" validate:"min=1"`
	AuthRatePerMinute int   `env:"AUTH_RATE_PER_MINUTE" envDefault:"30" validate:"min=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid field by its environment name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", envName(fe.StructField()), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var envNames = map[string]string{
	"Port":              "PORT",
	"LogLevel":          "LOG_LEVEL",
	"LogFormat":         "LOG_FORMAT",
	"DBPath":            "DB_PATH",
	"JWTSecret":         "JWT_SECRET",
	"TokenTTL":          "TOKEN_TTL",
	"BcryptCost":        "BCRYPT_COST",
	"SendGridAPIKey":    "SENDGRID_API_KEY",
	"SendGridBaseURL":   "SENDGRID_BASE_URL",
	"MailFrom":          "MAIL_FROM",
	"MailTimeout":       "MAIL_TIMEOUT",
	"AvatarMaxBytes":    "AVATAR_MAX_BYTES",
	"AuthRatePerMinute": "AUTH_RATE_PER_MINUTE",
}

func envName(field string) string {
	if n, ok := envNames[field]; ok {
		return n
	}
	return field
}
