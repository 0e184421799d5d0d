// Package config provides YAML-based configuration loading for hostbridge.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/spf13/viper"

    "hostbridge/pkg/protocol"
    "hostbridge/pkg/transport"
)

// Config is the root application configuration.
type Config struct {
    // AppName is used as the logger name and in the host's hello notification
    AppName string `mapstructure:"app_name"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Link selects the transport to the host and the frame encoding
    Link LinkConfig `mapstructure:"link"`

    // Correlator holds request timing defaults
    Correlator CorrelatorConfig `mapstructure:"correlator"`

    // Notify controls how host notifications are consumed
    Notify NotifyConfig `mapstructure:"notify"`

    // Metrics controls the Prometheus endpoint
    Metrics MetricsConfig `mapstructure:"metrics"`

    // Net holds dial retry options
    Net NetConfig `mapstructure:"net"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus scrape endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
    Listen string `mapstructure:"listen"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName: "hostbridge",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stderr"},
            Development: false,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/hostbridge.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Link: LinkConfig{
            Kind:   "tcp",
            Listen: "127.0.0.1:7710",
            Dial:   "127.0.0.1:7710",
            Format: "json",
        },
        Correlator: CorrelatorConfig{DefaultTimeoutMS: 30000, LateWindowMS: 120000},
        Notify:     NotifyConfig{RatePerSec: 20, Burst: 10, Buffer: 64},
        Net:        NetConfig{DialBackoffInitialMS: 500, DialBackoffMaxMS: 30000, DialBackoffJitterMS: 100, DialAttempts: 0},
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix HOSTBRIDGE and `.`/`-` are replaced with `_`.
// Example: HOSTBRIDGE_LINK_KIND=quic
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("HOSTBRIDGE")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("link.kind", cfg.Link.Kind)
    v.SetDefault("link.listen", cfg.Link.Listen)
    v.SetDefault("link.dial", cfg.Link.Dial)
    v.SetDefault("link.format", cfg.Link.Format)
    v.SetDefault("link.peer_id", cfg.Link.PeerID)
    v.SetDefault("link.fallback", cfg.Link.Fallback)
    v.SetDefault("correlator.default_timeout_ms", cfg.Correlator.DefaultTimeoutMS)
    v.SetDefault("correlator.late_window_ms", cfg.Correlator.LateWindowMS)
    v.SetDefault("notify.rate_per_sec", cfg.Notify.RatePerSec)
    v.SetDefault("notify.burst", cfg.Notify.Burst)
    v.SetDefault("notify.buffer", cfg.Notify.Buffer)
    v.SetDefault("metrics.listen", cfg.Metrics.Listen)
    v.SetDefault("net.dial_backoff_initial_ms", cfg.Net.DialBackoffInitialMS)
    v.SetDefault("net.dial_backoff_max_ms", cfg.Net.DialBackoffMaxMS)
    v.SetDefault("net.dial_backoff_jitter_ms", cfg.Net.DialBackoffJitterMS)
    v.SetDefault("net.dial_attempts", cfg.Net.DialAttempts)

    // Choose config file
    if path == "" {
        // Allow override via env var
        if envPath := os.Getenv("HOSTBRIDGE_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        // Search common locations with base name `hostbridge`
        v.SetConfigName("hostbridge")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".hostbridge"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var viperConfigFileNotFound viper.ConfigFileNotFoundError
        if !errors.As(err, &viperConfigFileNotFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

// Validate re-checks a config after callers changed it, e.g. from flags.
func (c *Config) Validate() error { return c.validate() }

func (c *Config) validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stderr"}
    }
    if strings.TrimSpace(c.AppName) == "" {
        c.AppName = "hostbridge"
    }

    c.Link.Kind = strings.ToLower(strings.TrimSpace(c.Link.Kind))
    if _, err := transport.ParseKind(c.Link.Kind); err != nil {
        return fmt.Errorf("invalid link.kind: %w", err)
    }
    if _, err := protocol.ParseFormat(c.Link.Format); err != nil {
        return fmt.Errorf("invalid link.format: %w", err)
    }
    for i, t := range c.Link.Targets()[1:] {
        if _, err := transport.ParseKind(t.Kind); err != nil {
            return fmt.Errorf("invalid link.fallback[%d]: %w", i, err)
        }
        if t.Addr == "" { return fmt.Errorf("invalid link.fallback[%d]: empty address", i) }
    }
    if c.Correlator.DefaultTimeoutMS <= 0 {
        return fmt.Errorf("invalid correlator.default_timeout_ms: %d", c.Correlator.DefaultTimeoutMS)
    }
    if c.Notify.Buffer <= 0 {
        c.Notify.Buffer = 64
    }
    return nil
}
