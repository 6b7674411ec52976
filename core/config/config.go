package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultMailBaseURL points at the public mail.tm API.
const DefaultMailBaseURL = "https://api.mail.tm"

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// AdminID is compared verbatim against the caller's numeric id.
	AdminID string `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	// Channel is the @username users must join before mailbox commands unlock.
	Channel string `yaml:"channel" envconfig:"TELEGRAM_CHANNEL"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	// SecretToken is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// MaxSizeMB, MaxBackups and MaxAgeDays control rotation of the bot file.
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// MailConfig configures the disposable mail provider client.
type MailConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"MAIL_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"MAIL_TIMEOUT_SECONDS"`
}

// BroadcastConfig paces admin broadcasts.
type BroadcastConfig struct {
	PerSecond float64 `yaml:"per_second" envconfig:"BROADCAST_PER_SECOND"`
	Burst     int     `yaml:"burst" envconfig:"BROADCAST_BURST"`
}

// DatabaseConfig holds the Postgres settings of the mailbox journal.
// The journal is disabled while Host is empty.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// Enabled reports whether a journal database is configured.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.Host) != ""
}

// OpsConfig configures the metrics and health listener.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// Update kinds the bot receives, as named in rate_limit.exclude_updates.
const (
	UpdateCallback = "callback"
	UpdateMessage  = "message"
)

// RateLimitConfig sets the minimum gap between updates from one user.
// ExcludeUpdates lists update kinds ("callback", "message") that bypass it.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Mail      MailConfig      `yaml:"mail"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Journal   DatabaseConfig  `yaml:"journal"`
	Ops       OpsConfig       `yaml:"ops"`
}

// Load reads configuration from a YAML file, an optional .env file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Missing .env is fine; variables already set in the environment win.
	_ = godotenv.Load()

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	channel := strings.TrimSpace(cfg.Telegram.Channel)
	if channel == "" {
		return fmt.Errorf("telegram.channel is required")
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	cfg.Telegram.Channel = channel

	cfg.Telegram.AdminID = strings.TrimSpace(cfg.Telegram.AdminID)
	if cfg.Telegram.AdminID != "" {
		if _, err := strconv.ParseInt(cfg.Telegram.AdminID, 10, 64); err != nil {
			return fmt.Errorf("telegram.admin_id must be a numeric user id, got %q", cfg.Telegram.AdminID)
		}
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	for i, v := range cfg.RateLimit.ExcludeUpdates {
		switch key := strings.ToLower(strings.TrimSpace(v)); key {
		case "":
		case UpdateCallback, UpdateMessage:
			cfg.RateLimit.ExcludeUpdates[i] = key
		default:
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
	}

	cfg.Mail.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Mail.BaseURL), "/")
	if cfg.Mail.BaseURL == "" {
		cfg.Mail.BaseURL = DefaultMailBaseURL
	}
	if cfg.Mail.TimeoutSeconds < 0 {
		return fmt.Errorf("mail.timeout_seconds must be >= 0")
	}
	if cfg.Mail.TimeoutSeconds == 0 {
		cfg.Mail.TimeoutSeconds = 15
	}

	if cfg.Broadcast.PerSecond < 0 {
		return fmt.Errorf("broadcast.per_second must be >= 0")
	}
	if cfg.Broadcast.PerSecond == 0 {
		cfg.Broadcast.PerSecond = 10
	}
	if cfg.Broadcast.Burst <= 0 {
		cfg.Broadcast.Burst = 1
	}

	if cfg.Journal.Enabled() {
		if cfg.Journal.Port == "" {
			cfg.Journal.Port = "5432"
		}
		if cfg.Journal.SSLMode == "" {
			cfg.Journal.SSLMode = "disable"
		}
		if cfg.Journal.MaxConnections <= 0 {
			cfg.Journal.MaxConnections = 4
		}
		if cfg.Journal.MigrationsDir == "" {
			cfg.Journal.MigrationsDir = "migrations"
		}
	}
	return nil
}
