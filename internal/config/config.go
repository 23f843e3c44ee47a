package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/logger"
)

// Config holds the runtime settings.
type Config struct {
	// Database is the SQLite file path. Empty means the default location.
	Database string `yaml:"database"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// ListenAddr is where `dwell serve` listens.
	ListenAddr string `yaml:"listen_addr"`
	// Metrics enables the /metrics endpoint.
	Metrics bool `yaml:"metrics"`

	Defaults Defaults `yaml:"defaults"`
	SMTP     SMTP     `yaml:"smtp"`
	MQTT     MQTT     `yaml:"mqtt"`
}

// Defaults seed the billing terms when the database has none stored.
type Defaults struct {
	GracePeriodMinutes int     `yaml:"grace_period_minutes"`
	HourlyRate         float64 `yaml:"hourly_rate"`
	InvoiceDueDays     int     `yaml:"invoice_due_days"`
}

// SMTP configures invoice delivery. An empty host disables email.
type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// MQTT configures event publishing. An empty broker disables it.
type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

const (
	DefaultListenAddr     = "127.0.0.1:8787"
	DefaultSMTPPort       = 587
	DefaultClientID       = "dwell"
	DefaultTopicPrefix    = "dwell"
	DefaultInvoiceDueDays = 30

	// DefaultFilePermissions keeps SMTP credentials private.
	DefaultFilePermissions = 0o600
)

var (
	errConfigIsNotSet   = errors.New("configuration is not set")
	errNegativeGrace    = errors.New("grace period must not be negative")
	errNegativeRate     = errors.New("hourly rate must not be negative")
	errNegativeDueDays  = errors.New("invoice due days must not be negative")
	errSMTPPortRange    = errors.New("smtp port must be between 1 and 65535")
	errSMTPFromRequired = errors.New("smtp from address is required when smtp host is set")
	errUnknownLogLevel  = errors.New("unknown log level")
	errBrokerScheme     = errors.New("unsupported mqtt broker scheme")
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		ListenAddr: DefaultListenAddr,
		Metrics:    true,
		Defaults: Defaults{
			GracePeriodMinutes: billing.DefaultGracePeriodMinutes,
			HourlyRate:         billing.DefaultHourlyRate,
			InvoiceDueDays:     DefaultInvoiceDueDays,
		},
		SMTP: SMTP{Port: DefaultSMTPPort},
		MQTT: MQTT{ClientID: DefaultClientID, TopicPrefix: DefaultTopicPrefix},
	}
}

// DefaultPath returns ~/.config/dwell/config.yaml
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "dwell", "config.yaml"), nil
}

// Load reads and validates the file at path. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save validates cfg and writes it to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}
	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate fills unset fields with defaults and rejects malformed values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, cfg.LogLevel)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.Defaults.GracePeriodMinutes < 0 {
		return errNegativeGrace
	}
	if cfg.Defaults.HourlyRate < 0 {
		return errNegativeRate
	}
	if cfg.Defaults.InvoiceDueDays < 0 {
		return errNegativeDueDays
	}

	if cfg.SMTP.Host != "" {
		if cfg.SMTP.Port == 0 {
			cfg.SMTP.Port = DefaultSMTPPort
		}
		if cfg.SMTP.Port < 1 || cfg.SMTP.Port > 65535 {
			return errSMTPPortRange
		}
		if strings.TrimSpace(cfg.SMTP.From) == "" {
			return errSMTPFromRequired
		}
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.Broker != "" {
		u, err := url.Parse(cfg.MQTT.Broker)
		if err != nil {
			return fmt.Errorf("invalid mqtt broker: %w", err)
		}
		switch u.Scheme {
		case "tcp", "ssl", "ws", "wss", "mqtt", "mqtts":
		default:
			return fmt.Errorf("%w: %q", errBrokerScheme, cfg.MQTT.Broker)
		}
	}

	return nil
}

// Terms returns the configured default billing terms.
func (c *Config) Terms() billing.Terms {
	return billing.Terms{
		GracePeriodMinutes: c.Defaults.GracePeriodMinutes,
		HourlyRate:         c.Defaults.HourlyRate,
	}
}

// DatabasePath resolves the database location, expanding a leading ~.
func (c *Config) DatabasePath(defaultPath string) string {
	p := c.Database
	if p == "" {
		return defaultPath
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
