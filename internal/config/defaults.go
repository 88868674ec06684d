package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultGatewayURL               = "http://localhost:3000"
	DefaultXMTPEnv                  = "dev"
	DefaultGatewayTimeout           = 15 * time.Second
	DefaultBotURLTemplate           = "ws://localhost:8787/bot/xmtp/{conversationId}/message"
	DefaultMaxConnections           = 10
	DefaultConnectTimeout           = 30 * time.Second
	DefaultIdleTimeout              = 5 * time.Minute
	DefaultMaxRequestsPerConnection = 1000
	DefaultSweepInterval            = time.Minute
	DefaultWriteTimeout             = 5 * time.Second
	DefaultPingTimeout              = 60 * time.Second
	DefaultOnitAPIURL               = "http://localhost:8787"
	DefaultOnitTimeout              = 30 * time.Second
	DefaultMaxRetries               = 3
	DefaultRateLimit                = 5.0
	DefaultRateBurst                = 10
	DefaultSiteURL                  = "https://onit.fun/"
	DefaultStreamBaseDelay          = time.Second
	DefaultStreamMaxDelay           = 60 * time.Second
	DefaultRestartThreshold         = 5
	DefaultFailureWindow            = time.Hour
	DefaultExtendedBaseDelay        = 5 * time.Minute
	DefaultExtendedMaxDelay         = time.Hour
	DefaultPollInterval             = 5 * time.Minute
	DefaultPollConcurrency          = 4
	DefaultPageSize                 = 5
	DefaultDBPort                   = 5432
	DefaultDBSSLMode                = "prefer"
	DefaultMaxConns                 = 10
	DefaultBatchSize                = 100
	DefaultFlushInterval            = time.Second
	DefaultHistorySize              = 10000
	DefaultMinConns                 = 2
	DefaultMetricsPort              = 9090
	DefaultMetricsPath              = "/metrics"
	DefaultLogLevel                 = "info"
	DefaultLogFormat                = "text"
	DefaultLogMaxSizeMB             = 100
	DefaultLogMaxBackups            = 5
	DefaultLogMaxAgeDays            = 28
)

// DefaultWelcomeCutoff is the creation time before which conversations never
// receive a welcome message (they predate the welcome feature).
var DefaultWelcomeCutoff = time.UnixMilli(1752493443000).UTC()

// DefaultFeeds are the market feeds the poller keeps warm.
var DefaultFeeds = []string{"", "trending"}

// ApplyDefaults fills zero-valued optional fields.
func (c *BridgeConfig) ApplyDefaults() {
	// XMTP defaults
	if c.XMTP.GatewayURL == "" {
		c.XMTP.GatewayURL = DefaultGatewayURL
	}
	if c.XMTP.Env == "" {
		c.XMTP.Env = DefaultXMTPEnv
	}
	if c.XMTP.Timeout == 0 {
		c.XMTP.Timeout = DefaultGatewayTimeout
	}
	if c.XMTP.WelcomeCutoff.IsZero() {
		c.XMTP.WelcomeCutoff = DefaultWelcomeCutoff
	}

	// Bot pool defaults
	if c.Bot.URLTemplate == "" {
		c.Bot.URLTemplate = DefaultBotURLTemplate
	}
	if c.Bot.MaxConnections == 0 {
		c.Bot.MaxConnections = DefaultMaxConnections
	}
	if c.Bot.ConnectTimeout == 0 {
		c.Bot.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Bot.IdleTimeout == 0 {
		c.Bot.IdleTimeout = DefaultIdleTimeout
	}
	if c.Bot.MaxRequestsPerConnection == 0 {
		c.Bot.MaxRequestsPerConnection = DefaultMaxRequestsPerConnection
	}
	if c.Bot.SweepInterval == 0 {
		c.Bot.SweepInterval = DefaultSweepInterval
	}
	if c.Bot.WriteTimeout == 0 {
		c.Bot.WriteTimeout = DefaultWriteTimeout
	}
	if c.Bot.PingTimeout == 0 {
		c.Bot.PingTimeout = DefaultPingTimeout
	}

	// Onit defaults
	if c.Onit.APIURL == "" {
		c.Onit.APIURL = DefaultOnitAPIURL
	}
	if c.Onit.Timeout == 0 {
		c.Onit.Timeout = DefaultOnitTimeout
	}
	if c.Onit.MaxRetries == 0 {
		c.Onit.MaxRetries = DefaultMaxRetries
	}
	if c.Onit.RateLimit == 0 {
		c.Onit.RateLimit = DefaultRateLimit
	}
	if c.Onit.RateBurst == 0 {
		c.Onit.RateBurst = DefaultRateBurst
	}
	if c.Onit.SiteURL == "" {
		c.Onit.SiteURL = DefaultSiteURL
	}

	// Stream supervisor defaults
	if c.Streams.BaseDelay == 0 {
		c.Streams.BaseDelay = DefaultStreamBaseDelay
	}
	if c.Streams.MaxDelay == 0 {
		c.Streams.MaxDelay = DefaultStreamMaxDelay
	}
	if c.Streams.RestartThreshold == 0 {
		c.Streams.RestartThreshold = DefaultRestartThreshold
	}
	if c.Streams.FailureWindow == 0 {
		c.Streams.FailureWindow = DefaultFailureWindow
	}
	if c.Streams.ExtendedBaseDelay == 0 {
		c.Streams.ExtendedBaseDelay = DefaultExtendedBaseDelay
	}
	if c.Streams.ExtendedMaxDelay == 0 {
		c.Streams.ExtendedMaxDelay = DefaultExtendedMaxDelay
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Feeds == nil {
		c.Poller.Feeds = append([]string(nil), DefaultFeeds...)
	}
	if c.Poller.PageSize == 0 {
		c.Poller.PageSize = DefaultPageSize
	}

	if c.Database.BatchSize == 0 {
		c.Database.BatchSize = DefaultBatchSize
	}
	if c.Database.FlushInterval == 0 {
		c.Database.FlushInterval = DefaultFlushInterval
	}
	if c.Database.HistorySize == 0 {
		c.Database.HistorySize = DefaultHistorySize
	}

	// Database defaults (only when configured)
	if c.Database.Postgres.Enabled() {
		applyDBDefaults(&c.Database.Postgres)
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
