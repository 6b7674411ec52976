package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc", Channel: "tempmail_news"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, "@tempmail_news", cfg.Telegram.Channel)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, DefaultMailBaseURL, cfg.Mail.BaseURL)
	assert.Equal(t, 15, cfg.Mail.TimeoutSeconds)
	assert.Equal(t, 10.0, cfg.Broadcast.PerSecond)
	assert.Equal(t, 1, cfg.Broadcast.Burst)
	assert.False(t, cfg.Journal.Enabled())
	assert.Empty(t, cfg.Journal.MigrationsDir)
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]func(*Config){
		"missing token":     func(c *Config) { c.Telegram.Token = "" },
		"missing channel":   func(c *Config) { c.Telegram.Channel = " " },
		"non numeric admin": func(c *Config) { c.Telegram.AdminID = "admin" },
		"bad run mode":      func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" },
		"webhook no url":    func(c *Config) { c.Telegram.RunMode = RunModeWebhook },
		"bad exclusion":     func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"poll"} },
		"inline exclusion":  func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"inline_query"} },
		"negative rate":     func(c *Config) { c.Broadcast.PerSecond = -1 },
		"negative timeout":  func(c *Config) { c.Mail.TimeoutSeconds = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestNormalizeJournalDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Journal.Host = "db"
	cfg.Mail.BaseURL = "http://mail.local/ "
	cfg.Telegram.RunMode = "polling"
	cfg.RateLimit.ExcludeUpdates = []string{" Callback ", ""}
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, []string{"callback", ""}, cfg.RateLimit.ExcludeUpdates)

	assert.Equal(t, "5432", cfg.Journal.Port)
	assert.Equal(t, "disable", cfg.Journal.SSLMode)
	assert.Equal(t, 4, cfg.Journal.MaxConnections)
	assert.Equal(t, "migrations", cfg.Journal.MigrationsDir)
	assert.Equal(t, "http://mail.local", cfg.Mail.BaseURL)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestLoadOverlaysEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
telegram:
  token: from-file
  channel: "@files"
  admin_id: "42"
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, "@files", cfg.Telegram.Channel)
	assert.Equal(t, "42", cfg.Telegram.AdminID)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
