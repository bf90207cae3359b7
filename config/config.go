package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig points at the Azure storage account backing the event and
// user tables plus the reminder queue.
type StorageConfig struct {
	ConnectionString string `yaml:"connection_string"`
	EventsTable      string `yaml:"events_table"`
	UsersTable       string `yaml:"users_table"`
	ReminderQueue    string `yaml:"reminder_queue"`
}

// RedisConfig configures the first-page cache.
type RedisConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

// AuthConfig selects the token verification mode. A non-empty Secret enables
// local HS256 session tokens; otherwise Audience and Domain configure RS256
// verification against the identity provider's JWKS.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	Audience string        `yaml:"audience"`
	Domain   string        `yaml:"domain"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// ReminderConfig drives the periodic due-event scan.
type ReminderConfig struct {
	Schedule   string        `yaml:"schedule"`
	LeadWindow time.Duration `yaml:"lead_window"`
}

// Config is the top-level application configuration. Values load from an
// optional YAML file; environment variables override.
type Config struct {
	Listen   string         `yaml:"listen"`
	Debug    bool           `yaml:"debug"`
	PageSize int            `yaml:"page_size"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Reminder ReminderConfig `yaml:"reminder"`
}

// Normalize fills in missing values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.Storage.EventsTable == "" {
		c.Storage.EventsTable = "events"
	}
	if c.Storage.UsersTable == "" {
		c.Storage.UsersTable = "users"
	}
	if c.Storage.ReminderQueue == "" {
		c.Storage.ReminderQueue = "reminders"
	}
	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = 5 * time.Minute
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Reminder.Schedule == "" {
		c.Reminder.Schedule = "0 8 * * *"
	}
	if c.Reminder.LeadWindow <= 0 {
		c.Reminder.LeadWindow = 24 * time.Hour
	}
}

// Validate reports missing required values.
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return errors.New("missing storage connection string")
	}
	if c.Redis.ConnectionString == "" {
		return errors.New("missing redis connection string")
	}
	if c.Auth.Secret == "" && (c.Auth.Audience == "" || c.Auth.Domain == "") {
		return errors.New("missing auth config: set a shared secret or a JWKS audience and domain")
	}
	return nil
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides, normalizes defaults and validates required values.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Listen, "LISTEN_ADDR")
	setString(&c.Storage.ConnectionString, "STORAGE_CONNECTION_STRING")
	setString(&c.Storage.EventsTable, "EVENTS_TABLE")
	setString(&c.Storage.UsersTable, "USERS_TABLE")
	setString(&c.Storage.ReminderQueue, "REMINDER_QUEUE")
	setString(&c.Redis.ConnectionString, "REDIS_CONNECTION_STRING")
	setString(&c.Auth.Secret, "AUTH_SECRET")
	setString(&c.Auth.Audience, "AUTH_AUDIENCE")
	setString(&c.Auth.Domain, "AUTH_DOMAIN")
	setString(&c.Reminder.Schedule, "REMINDER_SCHEDULE")

	if v := os.Getenv("DEBUG"); v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG: %w", err)
		}
		c.Debug = dbg
	}
	if err := setInt(&c.PageSize, "PAGE_SIZE"); err != nil {
		return err
	}
	if err := setDuration(&c.Redis.CacheTTL, "CACHE_TTL"); err != nil {
		return err
	}
	if err := setDuration(&c.Auth.TokenTTL, "AUTH_TOKEN_TTL"); err != nil {
		return err
	}
	if err := setDuration(&c.Reminder.LeadWindow, "REMINDER_LEAD_WINDOW"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s: must be a positive duration", name)
	}
	*dst = d
	return nil
}
