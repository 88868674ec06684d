package config

import "time"

// BridgeConfig is the root configuration for a bridge instance.
type BridgeConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	XMTP     XMTPConfig     `yaml:"xmtp"`
	Bot      BotConfig      `yaml:"bot"`
	Onit     OnitConfig     `yaml:"onit"`
	Streams  StreamsConfig  `yaml:"streams"`
	Poller   PollerConfig   `yaml:"poller"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this bridge.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// XMTPConfig holds settings for the XMTP gateway that fronts the messaging network.
type XMTPConfig struct {
	GatewayURL string        `yaml:"gateway_url"` // http(s) base URL; ws(s) derived for streams
	Env        string        `yaml:"env"`         // "dev" or "production"
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	// WelcomeCutoff skips welcome messages for conversations created before it.
	WelcomeCutoff time.Time `yaml:"welcome_cutoff"`
}

// BotConfig holds settings for the backend bot WebSocket pool.
type BotConfig struct {
	URLTemplate              string        `yaml:"url_template"` // must contain {conversationId}
	MaxConnections           int           `yaml:"max_connections"`
	ConnectTimeout           time.Duration `yaml:"connect_timeout"`
	IdleTimeout              time.Duration `yaml:"idle_timeout"`
	MaxRequestsPerConnection int           `yaml:"max_requests_per_connection"`
	SweepInterval            time.Duration `yaml:"sweep_interval"`
	WriteTimeout             time.Duration `yaml:"write_timeout"`
	PingTimeout              time.Duration `yaml:"ping_timeout"`
}

// OnitConfig holds prediction-market API settings.
type OnitConfig struct {
	APIURL     string        `yaml:"api_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second
	RateBurst  int           `yaml:"rate_burst"`
	SiteURL    string        `yaml:"site_url"` // shown to users, e.g. https://onit.fun/
}

// StreamsConfig holds stream supervisor settings, shared by both supervised streams.
type StreamsConfig struct {
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	RestartThreshold  int           `yaml:"restart_threshold"`
	FailureWindow     time.Duration `yaml:"failure_window"`
	ExtendedBaseDelay time.Duration `yaml:"extended_base_delay"` // first circuit-breaker delay
	ExtendedMaxDelay  time.Duration `yaml:"extended_max_delay"`
}

// PollerConfig holds market poller settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Feeds       []string      `yaml:"feeds"` // tag sets to keep warm; "" is the unfiltered feed
	PageSize    int           `yaml:"page_size"`
}

// DatabaseConfig holds the optional PostgreSQL connection. An empty host keeps
// all bridge state in memory.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`

	// Exchange log batching. The in-memory store keeps the last HistorySize
	// exchanges and processed message ids.
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	HistorySize   int           `yaml:"history_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// MetricsConfig holds Prometheus and health server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // empty = stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
