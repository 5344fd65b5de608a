package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	// AllowedUserID restricts processing to a single owner. 0 means everyone
	// is allowed unless StrictOwnerOnly forces a fail-closed gate.
	AllowedUserID   int64  `yaml:"allowed_user_id" envconfig:"TELEGRAM_ALLOWED_USER_ID"`
	StrictOwnerOnly bool   `yaml:"strict_owner_only" envconfig:"TELEGRAM_STRICT_OWNER_ONLY"`
	RunMode         string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// NotionConfig carries the workspace document-store credentials. The Notion
// backend activates only when Token, NotesDB and TasksDB are all present.
type NotionConfig struct {
	Token    string `yaml:"token" envconfig:"NOTION_TOKEN"`
	NotesDB  string `yaml:"notes_db_id" envconfig:"NOTION_NOTES_DB_ID"`
	TasksDB  string `yaml:"tasks_db_id" envconfig:"NOTION_TASKS_DB_ID"`
	Version  string `yaml:"version" envconfig:"NOTION_VERSION"`
	AdminKey string `yaml:"admin_setup_key" envconfig:"ADMIN_SETUP_KEY"`
}

// Configured reports whether all values required by the Notion backend are set.
func (n NotionConfig) Configured() bool {
	return strings.TrimSpace(n.Token) != "" &&
		strings.TrimSpace(n.NotesDB) != "" &&
		strings.TrimSpace(n.TasksDB) != ""
}

// AssistantConfig groups assistant behaviour settings.
type AssistantConfig struct {
	// BriefChatID receives the scheduled daily brief. 0 disables the cron job.
	BriefChatID int64 `yaml:"brief_chat_id" envconfig:"TELEGRAM_CHAT_ID"`
	// Defaults used until overridden via /settings.
	DailyBriefTime string `yaml:"daily_brief_time" envconfig:"DAILY_BRIEF_TIME"`
	Timezone       string `yaml:"timezone" envconfig:"ASSISTANT_TIMEZONE"`
	// RenderCacheSize bounds the per-process task-list render cache.
	RenderCacheSize int `yaml:"render_cache_size" envconfig:"RENDER_CACHE_SIZE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// DatabaseConfig holds database connection settings. It lives here so that
// core/database can depend on core/logger without a package cycle.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Config aggregates the full application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Notion    NotionConfig    `yaml:"notion"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
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

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if strings.TrimSpace(cfg.Assistant.DailyBriefTime) == "" {
		cfg.Assistant.DailyBriefTime = "07:30"
	}
	if strings.TrimSpace(cfg.Assistant.Timezone) == "" {
		cfg.Assistant.Timezone = "Asia/Singapore"
	}
	if cfg.Assistant.RenderCacheSize <= 0 {
		cfg.Assistant.RenderCacheSize = 256
	}
	if strings.TrimSpace(cfg.Notion.Version) == "" {
		cfg.Notion.Version = "2022-06-28"
	}
	return nil
}
