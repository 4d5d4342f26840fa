package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variables used to configure
// the client engine.
const EnvPrefix = "CLUSTER_RPC_"

// Config holds all configuration for the cluster RPC client.
type Config struct {
	Client  ClientConfig  `koanf:"client"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ClientConfig holds the connection engine settings.
type ClientConfig struct {
	// Servers is the initial cluster member address list,
	// "host:port" or "scheme://host:port" entries.
	Servers []string `koanf:"servers"`

	// RequestRetries is the total attempt budget for a synchronous
	// request, initial attempt included.
	RequestRetries int `koanf:"request_retries"`

	// SwitchRetryInterval is the wait between failed connect attempts
	// while switching servers.
	SwitchRetryInterval time.Duration `koanf:"switch_retry_interval"`

	// IdleThreshold is how long without a successful request the
	// client reports itself idle.
	IdleThreshold time.Duration `koanf:"idle_threshold"`

	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// Labels is static metadata attached to the client, opaque to the
	// engine.
	Labels map[string]string `koanf:"labels"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Format string `koanf:"format"` // "json" (default) or "text"
}

// MetricsConfig holds Prometheus metrics server configuration.
type MetricsConfig struct {
	// Enabled indicates whether metrics collection is enabled
	Enabled bool `koanf:"enabled"`

	// Port is the port for the metrics HTTP server
	Port int `koanf:"port"`
}

// LoadConfig loads configuration from file, environment variables, and
// defaults. Priority: environment variables > config file > defaults.
// An empty configPath skips the file layer.
func LoadConfig(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		// Double underscore separates nesting levels; single
		// underscore stays part of the key.
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config struct with default configuration values
func defaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			RequestRetries:      3,
			SwitchRetryInterval: 1 * time.Second,
			IdleThreshold:       3 * time.Second,
			ConnectTimeout:      10 * time.Second,
			Labels:              map[string]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9095,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Client.RequestRetries < 1 {
		return fmt.Errorf("client.request_retries must be at least 1, got %d", c.Client.RequestRetries)
	}
	if c.Client.SwitchRetryInterval <= 0 {
		return fmt.Errorf("client.switch_retry_interval must be positive, got %v", c.Client.SwitchRetryInterval)
	}
	if c.Client.IdleThreshold <= 0 {
		return fmt.Errorf("client.idle_threshold must be positive, got %v", c.Client.IdleThreshold)
	}
	if c.Client.ConnectTimeout <= 0 {
		return fmt.Errorf("client.connect_timeout must be positive, got %v", c.Client.ConnectTimeout)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be a valid port, got %d", c.Metrics.Port)
	}

	return nil
}
