package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	GrpcHost  string           `yaml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port"`
	Upstream  MUpstreamConfig  `yaml:"upstream"`
	Accounts  []MAccountConfig `yaml:"accounts"`
	State     MStateConfig     `yaml:"state"`
	Broadcast MBroadcastConfig `yaml:"broadcast"`
	Trading   MTradingConfig   `yaml:"trading"`
	Storage   MStorageConfig   `yaml:"storage"`
	Analytics MAnalyticsConfig `yaml:"analytics"`
}

type MUpstreamConfig struct {
	URL                   string   `yaml:"url"`
	AppID                 string   `yaml:"app_id"`
	HeartbeatSeconds      int      `yaml:"heartbeat_seconds"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	ReconnectBaseSeconds  int      `yaml:"reconnect_base_seconds"`
	ReconnectMaxSeconds   int      `yaml:"reconnect_max_seconds"`
	SweepIntervalMillis   int      `yaml:"sweep_interval_ms"`
	Symbols               []string `yaml:"symbols"`
}

type MAccountConfig struct {
	Label string `yaml:"label"`
	Token string `yaml:"token"`
	AppID string `yaml:"app_id"`
}

type MStateConfig struct {
	TickHistory int `yaml:"tick_history"`
	LogHistory  int `yaml:"log_history"`
}

type MBroadcastConfig struct {
	ClientQueue int `yaml:"client_queue"`
	PingSeconds int `yaml:"ping_seconds"`
}

type MTradingConfig struct {
	AwaitFill           bool   `yaml:"await_fill"`
	DefaultCurrency     string `yaml:"default_currency"`
	CooldownSeconds     int    `yaml:"cooldown_seconds"`
	MaxOpenTrades       int    `yaml:"max_open_trades"`
	SymbolsCacheSeconds int    `yaml:"symbols_cache_seconds"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // none, sqlite or postgres
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MAnalyticsConfig struct {
	Sources []MAnalyticsSourceConfig `yaml:"sources"`
}

type MAnalyticsSourceConfig struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"` // amqp or kafka
	URL     string   `yaml:"url"`
	Queue   string   `yaml:"queue"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// MEnvOverrides holds values read from the environment after the YAML file.
type MEnvOverrides struct {
	Token       string `env:"DERIV_TOKEN"`
	AppID       string `env:"DERIV_APP_ID"`
	Port        int    `env:"RELAY_PORT"`
	LogLevel    string `env:"RELAY_LOG_LEVEL"`
	UpstreamURL string `env:"RELAY_UPSTREAM_URL"`
}
