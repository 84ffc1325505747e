package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"trading-relay/src/helpers"
	"trading-relay/src/models"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/default.yaml"

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config from a YAML file, then applies .env and
// environment overrides, defaults and validation.
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// 2. Overlay .env (optional) and process environment
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	// 3. Fill gaps and validate
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Parse decodes YAML bytes without touching the environment.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}
	return &Config{MConfig: &modelConfig}, nil
}

// -----------------------------------------------------------------------------

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyEnv overrides file values with DERIV_* and RELAY_* variables.
// DERIV_TOKEN replaces the first configured account or creates one.
func (c *Config) ApplyEnv() error {
	var overrides models.MEnvOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if overrides.AppID != "" {
		c.Upstream.AppID = overrides.AppID
	}
	if overrides.Port != 0 {
		c.Port = overrides.Port
	}
	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}
	if overrides.UpstreamURL != "" {
		c.Upstream.URL = overrides.UpstreamURL
	}
	if overrides.Token != "" {
		if len(c.Accounts) == 0 {
			c.Accounts = append(c.Accounts, models.MAccountConfig{Label: "default"})
		}
		c.Accounts[0].Token = overrides.Token
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills optional values left empty in the file.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "trading-relay"
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.GrpcHost == "" {
		c.GrpcHost = c.Host
	}

	u := &c.Upstream
	if u.URL == "" {
		u.URL = "wss://ws.derivws.com/websockets/v3"
	}
	if u.AppID == "" {
		u.AppID = "1089"
	}
	if u.HeartbeatSeconds == 0 {
		u.HeartbeatSeconds = 15
	}
	if u.RequestTimeoutSeconds == 0 {
		u.RequestTimeoutSeconds = 30
	}
	if u.ReconnectBaseSeconds == 0 {
		u.ReconnectBaseSeconds = 1
	}
	if u.ReconnectMaxSeconds == 0 {
		u.ReconnectMaxSeconds = 30
	}
	if u.SweepIntervalMillis == 0 {
		u.SweepIntervalMillis = 500
	}
	if len(u.Symbols) == 0 {
		u.Symbols = []string{"R_100", "R_50"}
	}

	for i := range c.Accounts {
		if c.Accounts[i].AppID == "" {
			c.Accounts[i].AppID = u.AppID
		}
		if c.Accounts[i].Label == "" {
			c.Accounts[i].Label = fmt.Sprintf("account-%d", i+1)
		}
	}

	if c.State.TickHistory == 0 {
		c.State.TickHistory = 50
	}
	if c.State.LogHistory == 0 {
		c.State.LogHistory = 500
	}
	if c.Broadcast.ClientQueue == 0 {
		c.Broadcast.ClientQueue = 256
	}
	if c.Broadcast.PingSeconds == 0 {
		c.Broadcast.PingSeconds = 30
	}
	if c.Trading.DefaultCurrency == "" {
		c.Trading.DefaultCurrency = "USD"
	}
	if c.Trading.SymbolsCacheSeconds == 0 {
		c.Trading.SymbolsCacheSeconds = 300
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "none"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 30
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return helpers.NewConfigurationError("application name cannot be empty")
	}
	if c.Host == "" {
		return helpers.NewConfigurationError("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return helpers.NewConfigurationError("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535 || c.GrpcPort == c.Port) {
		return helpers.NewConfigurationError("invalid grpc port number: %d", c.GrpcPort)
	}

	// Upstream
	if !strings.HasPrefix(c.Upstream.URL, "ws://") && !strings.HasPrefix(c.Upstream.URL, "wss://") {
		return helpers.NewConfigurationError("upstream url must be ws:// or wss://, got '%s'", c.Upstream.URL)
	}
	if c.Upstream.HeartbeatSeconds < 0 || c.Upstream.RequestTimeoutSeconds < 0 {
		return helpers.NewConfigurationError("upstream timings cannot be negative")
	}
	if c.Upstream.ReconnectMaxSeconds < c.Upstream.ReconnectBaseSeconds {
		return helpers.NewConfigurationError("reconnect_max_seconds (%d) must be >= reconnect_base_seconds (%d)",
			c.Upstream.ReconnectMaxSeconds, c.Upstream.ReconnectBaseSeconds)
	}
	for i, sym := range c.Upstream.Symbols {
		if strings.TrimSpace(sym) == "" {
			return helpers.NewConfigurationError("upstream symbol %d cannot be empty", i)
		}
	}

	// State and broadcast
	if c.State.TickHistory < 1 || c.State.LogHistory < 1 {
		return helpers.NewConfigurationError("state history sizes must be positive")
	}
	if c.Broadcast.ClientQueue < 1 {
		return helpers.NewConfigurationError("broadcast client_queue must be positive")
	}

	// Storage
	switch c.Storage.DBType {
	case "none":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return helpers.NewConfigurationError("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return helpers.NewConfigurationError("connection string cannot be empty for postgres")
		}
	default:
		return helpers.NewConfigurationError("unsupported database type '%s'", c.Storage.DBType)
	}

	// Analytics
	for i, src := range c.Analytics.Sources {
		if src.Name == "" {
			return helpers.NewConfigurationError("analytics source %d must have a name", i)
		}
		switch src.Type {
		case "amqp":
			if src.URL == "" || src.Queue == "" {
				return helpers.NewConfigurationError("analytics source '%s' needs url and queue", src.Name)
			}
		case "kafka":
			if len(src.Brokers) == 0 || src.Topic == "" {
				return helpers.NewConfigurationError("analytics source '%s' needs brokers and topic", src.Name)
			}
		default:
			return helpers.NewConfigurationError("analytics source '%s' has unsupported type '%s'", src.Name, src.Type)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path.
// Account tokens are blanked so secrets never land on disk.
func (c *Config) Save(configPath string) error {
	// 1. Copy and strip secrets
	clean := *c.MConfig
	clean.Accounts = make([]models.MAccountConfig, len(c.Accounts))
	for i, a := range c.Accounts {
		a.Token = ""
		clean.Accounts[i] = a
	}

	// 2. Marshal the struct to YAML
	data, err := yaml.Marshal(&clean)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 3. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// Durations derived from the second/millisecond fields

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Upstream.HeartbeatSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Upstream.RequestTimeoutSeconds) * time.Second
}

func (c *Config) ReconnectBase() time.Duration {
	return time.Duration(c.Upstream.ReconnectBaseSeconds) * time.Second
}

func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.Upstream.ReconnectMaxSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Upstream.SweepIntervalMillis) * time.Millisecond
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Broadcast.PingSeconds) * time.Second
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Trading.CooldownSeconds) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

func (c *Config) SymbolsCacheTTL() time.Duration {
	return time.Duration(c.Trading.SymbolsCacheSeconds) * time.Second
}
