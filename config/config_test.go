package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envVars = []string{
	"LISTEN_ADDR", "DEBUG", "PAGE_SIZE",
	"STORAGE_CONNECTION_STRING", "EVENTS_TABLE", "USERS_TABLE", "REMINDER_QUEUE",
	"REDIS_CONNECTION_STRING", "CACHE_TTL",
	"AUTH_SECRET", "AUTH_AUDIENCE", "AUTH_DOMAIN", "AUTH_TOKEN_TTL",
	"REMINDER_SCHEDULE", "REMINDER_LEAD_WINDOW",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("REDIS_CONNECTION_STRING", "redis://localhost:6379")
	t.Setenv("AUTH_SECRET", "test-secret")
}

func TestLoadEnvOnlyWithDefaults(t *testing.T) {
	clearEnv(t)
	requiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("unexpected listen: %q", cfg.Listen)
	}
	if cfg.PageSize != 20 {
		t.Fatalf("unexpected page size: %d", cfg.PageSize)
	}
	if cfg.Storage.EventsTable != "events" || cfg.Storage.UsersTable != "users" || cfg.Storage.ReminderQueue != "reminders" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Redis.CacheTTL != 5*time.Minute {
		t.Fatalf("unexpected cache ttl: %v", cfg.Redis.CacheTTL)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Reminder.Schedule != "0 8 * * *" || cfg.Reminder.LeadWindow != 24*time.Hour {
		t.Fatalf("unexpected reminder defaults: %+v", cfg.Reminder)
	}
}

func TestLoadYamlFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	requiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: ":9090"
page_size: 50
storage:
  events_table: customEvents
reminder:
  schedule: "30 7 * * *"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PAGE_SIZE", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("file value not applied: %q", cfg.Listen)
	}
	if cfg.PageSize != 10 {
		t.Fatalf("env override not applied: %d", cfg.PageSize)
	}
	if cfg.Storage.EventsTable != "customEvents" {
		t.Fatalf("nested file value not applied: %q", cfg.Storage.EventsTable)
	}
	if cfg.Reminder.Schedule != "30 7 * * *" {
		t.Fatalf("reminder schedule not applied: %q", cfg.Reminder.Schedule)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	clearEnv(t)
	requiredEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected missing config file to fail")
	}
}

func TestLoadMissingRequiredValues(t *testing.T) {
	cases := []struct {
		name string
		omit string
	}{
		{"no storage", "STORAGE_CONNECTION_STRING"},
		{"no redis", "REDIS_CONNECTION_STRING"},
		{"no auth", "AUTH_SECRET"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			requiredEnv(t)
			os.Unsetenv(tc.omit)
			if _, err := Load(""); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}
}

func TestLoadJWKSModeSatisfiesAuth(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("REDIS_CONNECTION_STRING", "redis://localhost:6379")
	t.Setenv("AUTH_AUDIENCE", "wisher-clients")
	t.Setenv("AUTH_DOMAIN", "wisher.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Secret != "" {
		t.Fatalf("unexpected secret: %q", cfg.Auth.Secret)
	}
}

func TestLoadInvalidNumbers(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad page size", "PAGE_SIZE", "zero"},
		{"negative page size", "PAGE_SIZE", "-1"},
		{"bad ttl", "CACHE_TTL", "soon"},
		{"bad debug", "DEBUG", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			requiredEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(""); err == nil {
				t.Fatal("expected load failure")
			}
		})
	}
}
