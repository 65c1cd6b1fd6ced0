// Package config loads mailbridge settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Mailbox    MailboxConfig    `mapstructure:"mailbox"`
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Poll       PollConfig       `mapstructure:"poll"`
	Quarantine QuarantineConfig `mapstructure:"quarantine"`
}

// MailboxConfig addresses the IMAP mailbox to poll.
type MailboxConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Folder   string `mapstructure:"folder"`
	TLS      bool   `mapstructure:"tls"`
}

// TrackerConfig addresses the ticket tracker API.
type TrackerConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Project string        `mapstructure:"project"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollConfig controls the recurring poll cycle.
type PollConfig struct {
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// QuarantineConfig locates the directory for unprocessable messages.
type QuarantineConfig struct {
	Dir string `mapstructure:"dir"`
}

// envBindings maps config keys to the environment variables that override
// them. The variable names match what operators already export for the
// mailbox and tracker credentials.
var envBindings = map[string]string{
	"mailbox.host":     "IMAP_HOST",
	"mailbox.port":     "IMAP_PORT",
	"mailbox.user":     "IMAP_USER",
	"mailbox.password": "IMAP_PASSWORD",
	"mailbox.folder":   "IMAP_FOLDER",
	"mailbox.tls":      "IMAP_TLS",
	"tracker.url":      "TRACKER_URL",
	"tracker.api_key":  "TRACKER_API_KEY",
	"tracker.project":  "TRACKER_PROJECT",
	"tracker.timeout":  "TRACKER_TIMEOUT",
	"poll.schedule":    "POLL_SCHEDULE",
	"poll.timeout":     "POLL_TIMEOUT",
	"quarantine.dir":   "QUARANTINE_DIR",
}

// Load reads configuration from the given YAML file (optional, pass "" to
// skip) and the environment, applies defaults, and validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("mailbox.port", 993)
	v.SetDefault("mailbox.folder", "INBOX")
	v.SetDefault("mailbox.tls", true)
	v.SetDefault("tracker.timeout", 30*time.Second)
	v.SetDefault("poll.schedule", "@every 5m")
	v.SetDefault("poll.timeout", 2*time.Minute)
	v.SetDefault("quarantine.dir", "quarantine")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing required setting at once, so a misconfigured
// deployment fails with the full list instead of one key per restart.
func (c *Config) Validate() error {
	var missing []string
	if c.Mailbox.Host == "" {
		missing = append(missing, "IMAP_HOST")
	}
	if c.Mailbox.User == "" {
		missing = append(missing, "IMAP_USER")
	}
	if c.Mailbox.Password == "" {
		missing = append(missing, "IMAP_PASSWORD")
	}
	if c.Tracker.URL == "" {
		missing = append(missing, "TRACKER_URL")
	}
	if c.Tracker.APIKey == "" {
		missing = append(missing, "TRACKER_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
