package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
	assert.Equal(t, DefaultTaskQueue, cfg.Temporal.TaskQueue)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 60*time.Second, cfg.Expiry.Interval)
	assert.Equal(t, 180*time.Second, cfg.Prompts.Info)
	assert.Equal(t, 60*time.Second, cfg.Prompts.Evidence)
	assert.Equal(t, 48*time.Hour, cfg.Prompts.Decision)
	assert.Equal(t, "commissions", cfg.Discord.CommissionCategory)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
discord:
  token: from-file
  app_id: "111"
  staff_roles: [mod, admin]
  mod_log_channel: "999"
store:
  driver: mysql
  dsn: "user:pass@tcp(db:3306)/modbot"
expiry:
  interval: 30s
prompts:
  evidence: 2m
log:
  level: debug
  format: console
`)
	t.Setenv("MODBOT_DISCORD_TOKEN", "from-env")
	t.Setenv("MODBOT_TEMPORAL_TASK_QUEUE", "custom-queue")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Discord.Token.Value())
	assert.Equal(t, "111", cfg.Discord.AppID)
	assert.Equal(t, []string{"mod", "admin"}, cfg.Discord.StaffRoles)
	assert.Equal(t, "999", cfg.Discord.ModLogChannel)
	assert.Equal(t, "custom-queue", cfg.Temporal.TaskQueue)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Expiry.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Prompts.Evidence)
	assert.Equal(t, "console", cfg.Log.Format)
	require.NoError(t, cfg.ValidateBot())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("mysql needs dsn", func(t *testing.T) {
		cfg := &Config{Store: StoreConfig{Driver: "mysql"}}
		applyDefaults(cfg)
		assert.ErrorContains(t, cfg.Validate(), "store.dsn")
	})
	t.Run("unknown driver", func(t *testing.T) {
		cfg := &Config{Store: StoreConfig{Driver: "sqlite"}}
		applyDefaults(cfg)
		assert.ErrorContains(t, cfg.Validate(), "store.driver")
	})
	t.Run("bot needs token and roles", func(t *testing.T) {
		cfg := &Config{}
		applyDefaults(cfg)
		err := cfg.ValidateBot()
		assert.ErrorContains(t, err, "discord.token")
		assert.ErrorContains(t, err, "discord.app_id")
		assert.ErrorContains(t, err, "discord.staff_roles")
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "discord.token", envKey("MODBOT_DISCORD_TOKEN"))
	assert.Equal(t, "discord.staff_roles", envKey("MODBOT_DISCORD_STAFF_ROLES"))
	assert.Equal(t, "http.metrics_addr", envKey("MODBOT_HTTP_METRICS_ADDR"))
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "hunter2", s.Value())

	b, err := json.Marshal(DiscordConfig{Token: s})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hunter2")
	assert.False(t, Secret("").IsSet())
}
