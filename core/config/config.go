package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// VKConfig holds VK community API settings.
type VKConfig struct {
	Token      string `yaml:"token" envconfig:"VK_TOKEN"`
	GroupID    int64  `yaml:"group_id" envconfig:"VK_GROUP_ID"`
	APIVersion string `yaml:"api_version" envconfig:"VK_API_VERSION"`
	// WaitSeconds defines the long poll hold time; 0 -> default (25s)
	WaitSeconds int `yaml:"wait_seconds" envconfig:"VK_WAIT_SECONDS"`
	// BackoffSeconds is the pause before re-acquiring a descriptor after a
	// transport fault; 0 -> default (5s)
	BackoffSeconds int `yaml:"backoff_seconds" envconfig:"VK_BACKOFF_SECONDS"`
	// SendRate caps outbound messages.send calls per second; 0 -> default (20)
	SendRate int `yaml:"send_rate" envconfig:"VK_SEND_RATE"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// DispatchConfig controls the per-user dispatch pool.
type DispatchConfig struct {
	Workers   int `yaml:"workers" envconfig:"DISPATCH_WORKERS"`
	QueueSize int `yaml:"queue_size" envconfig:"DISPATCH_QUEUE_SIZE"`
}

// OpsConfig configures the operational HTTP endpoint. Empty listen disables it.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

// NotifyConfig configures the optional Telegram admin notifier.
// Empty token disables notifications entirely.
type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token" envconfig:"NOTIFY_TELEGRAM_TOKEN"`
	ChatID        int64  `yaml:"chat_id" envconfig:"NOTIFY_CHAT_ID"`
}

// Config aggregates the full bot configuration.
type Config struct {
	VK       VKConfig       `yaml:"vk"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Ops      OpsConfig      `yaml:"ops"`
	Notify   NotifyConfig   `yaml:"notify"`
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

	if strings.TrimSpace(cfg.VK.Token) == "" {
		return fmt.Errorf("vk token is required")
	}
	if cfg.VK.GroupID <= 0 {
		return fmt.Errorf("vk.group_id must be > 0")
	}
	if strings.TrimSpace(cfg.VK.APIVersion) == "" {
		cfg.VK.APIVersion = "5.131"
	}
	if cfg.VK.WaitSeconds < 0 {
		return fmt.Errorf("vk.wait_seconds must be >= 0")
	}
	if cfg.VK.WaitSeconds == 0 {
		cfg.VK.WaitSeconds = 25
	}
	if cfg.VK.BackoffSeconds < 0 {
		return fmt.Errorf("vk.backoff_seconds must be >= 0")
	}
	if cfg.VK.BackoffSeconds == 0 {
		cfg.VK.BackoffSeconds = 5
	}
	if cfg.VK.SendRate <= 0 {
		cfg.VK.SendRate = 20
	}

	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.QueueSize <= 0 {
		cfg.Dispatch.QueueSize = 256
	}

	if cfg.Notify.TelegramToken != "" && cfg.Notify.ChatID == 0 {
		return fmt.Errorf("notify.chat_id is required when notify.telegram_token is set")
	}

	return nil
}
