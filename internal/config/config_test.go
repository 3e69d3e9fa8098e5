package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.DBPath != "data/taskmanager.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.TokenTTL != 0 {
		t.Errorf("TokenTTL = %v, want 0 (no expiry)", cfg.TokenTTL)
	}
	if cfg.BcryptCost != 8 {
		t.Errorf("BcryptCost = %d, want 8", cfg.BcryptCost)
	}
	if cfg.AvatarMaxBytes != 1_000_000 {
		t.Errorf("AvatarMaxBytes = %d, want 1000000", cfg.AvatarMaxBytes)
	}
	if cfg.MailTimeout != 10*time.Second {
		t.Errorf("MailTimeout = %v, want 10s", cfg.MailTimeout)
	}
	if cfg.SendGridAPIKey != "" {
		t.Errorf("SendGridAPIKey = %q, want empty", cfg.SendGridAPIKey)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want info", cfg.SlogLevel())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("PORT", "8081")
	t.Setenv("TOKEN_TTL", "24h")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("MAIL_FROM", "noreply@example.com")
	t.Setenv("MAIL_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", cfg.TokenTTL)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", cfg.SlogLevel())
	}
	if cfg.MailTimeout != 3*time.Second {
		t.Errorf("MailTimeout = %v, want 3s", cfg.MailTimeout)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantSub string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"bad port", map[string]string{"JWT_SECRET": "0123456789abcdef", "PORT": "70000"}, "PORT"},
		{"unparseable port", map[string]string{"JWT_SECRET": "0123456789abcdef", "PORT": "abc"}, "Port"},
		{"bad log level", map[string]string{"JWT_SECRET": "0123456789abcdef", "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad bcrypt cost", map[string]string{"JWT_SECRET": "0123456789abcdef", "BCRYPT_COST": "2"}, "BCRYPT_COST"},
		{"bad sender", map[string]string{"JWT_SECRET": "0123456789abcdef", "MAIL_FROM": "nobody"}, "MAIL_FROM"},
		{"zero mail timeout", map[string]string{"JWT_SECRET": "0123456789abcdef", "MAIL_TIMEOUT": "0s"}, "MAIL_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Load() error = %q, want it to mention %s", err, tt.wantSub)
			}
		})
	}
}
