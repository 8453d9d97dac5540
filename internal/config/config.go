package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CAREOPS_MONITOR_INTERVAL
const EnvPrefix = "CAREOPS"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Provider ProviderConfig `mapstructure:"provider"`
	NATS     NATSConfig     `mapstructure:"nats"`
	History  HistoryConfig  `mapstructure:"history"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Email    EmailConfig    `mapstructure:"email"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Actions  ActionsConfig  `mapstructure:"actions"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MonitorConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	DefaultRules bool          `mapstructure:"default_rules"`
	HostMetrics  bool          `mapstructure:"host_metrics"`
}

// ProviderConfig points at the hospital statistics service. An empty
// BaseURL selects the in-memory provider.
type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type HistoryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	DBPath    string        `mapstructure:"db_path"`
	Retention time.Duration `mapstructure:"retention"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
}

type WebhookConfig struct {
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

// ActionsConfig bounds delivery of email, sms and webhook actions
type ActionsConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "careops-alerts")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("monitor.interval", 5*time.Minute)
	v.SetDefault("monitor.initial_delay", time.Second)
	v.SetDefault("monitor.fetch_timeout", 10*time.Second)
	v.SetDefault("monitor.default_rules", true)
	v.SetDefault("monitor.host_metrics", true)

	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.token", "")
	v.SetDefault("provider.timeout", 10*time.Second)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", "notification_history.db")
	v.SetDefault("history.retention", 30*24*time.Hour)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")

	v.SetDefault("sms.enabled", false)
	v.SetDefault("sms.provider", "")
	v.SetDefault("sms.api_key", "")
	v.SetDefault("sms.from", "")

	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.headers", map[string]string{})

	v.SetDefault("actions.timeout", 30*time.Second)
	v.SetDefault("actions.max_attempts", 1)
	v.SetDefault("actions.retry_backoff", 200*time.Millisecond)
}

// Load reads config.yaml from the given directories, applies CAREOPS_*
// environment overrides and fills in defaults. A missing file is not an
// error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.InitialDelay < 0 {
		return fmt.Errorf("monitor.initial_delay must not be negative, got %s", c.Monitor.InitialDelay)
	}
	if c.Monitor.FetchTimeout <= 0 {
		return fmt.Errorf("monitor.fetch_timeout must be positive, got %s", c.Monitor.FetchTimeout)
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return errors.New("history.db_path is required when history is enabled")
	}
	return nil
}
