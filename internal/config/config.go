// Package config loads modbot configuration from an optional YAML file overridden by
// MODBOT_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modbot/internal/logging"
)

type Config struct {
	Discord  DiscordConfig  `koanf:"discord"`
	Temporal TemporalConfig `koanf:"temporal"`
	Store    StoreConfig    `koanf:"store"`
	HTTP     HTTPConfig     `koanf:"http"`
	Expiry   ExpiryConfig   `koanf:"expiry"`
	Prompts  PromptConfig   `koanf:"prompts"`
	Log      logging.Config `koanf:"log"`
}

type DiscordConfig struct {
	Token   Secret `koanf:"token"`
	AppID   string `koanf:"app_id"`
	GuildID string `koanf:"guild_id"`
	// StaffRoles may run moderation commands; DeveloperRole may open commissions.
	StaffRoles         []string `koanf:"staff_roles"`
	DeveloperRole      string   `koanf:"developer_role"`
	ModLogChannel      string   `koanf:"mod_log_channel"`
	FallbackChannel    string   `koanf:"fallback_channel"`
	CommissionCategory string   `koanf:"commission_category"`
	InviteURL          string   `koanf:"invite_url"`
}

type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

type StoreConfig struct {
	Driver string `koanf:"driver"` // mysql or memory
	DSN    Secret `koanf:"dsn"`
}

type HTTPConfig struct {
	MetricsAddr string `koanf:"metrics_addr"`
	APIAddr     string `koanf:"api_addr"`
}

type ExpiryConfig struct {
	Interval time.Duration `koanf:"interval"`
	MaxTicks int           `koanf:"max_ticks"`
}

type PromptConfig struct {
	Info     time.Duration `koanf:"info"`
	Evidence time.Duration `koanf:"evidence"`
	Decision time.Duration `koanf:"decision"`
}

const (
	DefaultTaskQueue          = "MODBOT_TASK_QUEUE"
	DefaultCommissionCategory = "commissions"
)

func applyDefaults(c *Config) {
	if c.Temporal.HostPort == "" {
		c.Temporal.HostPort = "localhost:7233"
	}
	if c.Temporal.Namespace == "" {
		c.Temporal.Namespace = "default"
	}
	if c.Temporal.TaskQueue == "" {
		c.Temporal.TaskQueue = DefaultTaskQueue
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.HTTP.MetricsAddr == "" {
		c.HTTP.MetricsAddr = ":9102"
	}
	if c.HTTP.APIAddr == "" {
		c.HTTP.APIAddr = ":8080"
	}
	if c.Expiry.Interval <= 0 {
		c.Expiry.Interval = 60 * time.Second
	}
	if c.Expiry.MaxTicks <= 0 {
		c.Expiry.MaxTicks = 500
	}
	if c.Prompts.Info <= 0 {
		c.Prompts.Info = 180 * time.Second
	}
	if c.Prompts.Evidence <= 0 {
		c.Prompts.Evidence = 60 * time.Second
	}
	if c.Prompts.Decision <= 0 {
		c.Prompts.Decision = 48 * time.Hour
	}
	if c.Discord.CommissionCategory == "" {
		c.Discord.CommissionCategory = DefaultCommissionCategory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks the settings every process needs. ValidateBot adds the gateway settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "mysql":
		if !c.Store.DSN.IsSet() {
			errs = append(errs, errors.New("store.dsn is required for the mysql driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: must be mysql or memory", c.Store.Driver))
	}
	if c.Expiry.Interval < time.Second {
		errs = append(errs, fmt.Errorf("expiry.interval %s: must be at least 1s", c.Expiry.Interval))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) ValidateBot() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !c.Discord.Token.IsSet() {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if c.Discord.AppID == "" {
		errs = append(errs, errors.New("discord.app_id is required"))
	}
	if len(c.Discord.StaffRoles) == 0 {
		errs = append(errs, errors.New("discord.staff_roles must name at least one role"))
	}
	return errors.Join(errs...)
}

// Secret redacts its value in logs and serialization. Use Value() to read it.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

func (s Secret) Value() string {
	return string(s)
}

func (s Secret) IsSet() bool {
	return strings.TrimSpace(string(s)) != ""
}

func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}
