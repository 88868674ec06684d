package bridge

import (
	"github.com/onit-labs/xmtp-bot/internal/config"
	"github.com/onit-labs/xmtp-bot/internal/connection"
	"github.com/onit-labs/xmtp-bot/internal/supervisor"
)

func poolConfig(c config.BotConfig) connection.PoolConfig {
	client := connection.DefaultClientConfig()
	client.WriteTimeout = c.WriteTimeout
	client.PingTimeout = c.PingTimeout

	return connection.PoolConfig{
		URLTemplate:              c.URLTemplate,
		MaxConnections:           c.MaxConnections,
		ConnectTimeout:           c.ConnectTimeout,
		IdleTimeout:              c.IdleTimeout,
		MaxRequestsPerConnection: c.MaxRequestsPerConnection,
		SweepInterval:            c.SweepInterval,
		Client:                   client,
	}
}

func trackerConfig(c config.StreamsConfig) supervisor.TrackerConfig {
	tc := supervisor.DefaultTrackerConfig()
	tc.Backoff.Base = c.BaseDelay
	tc.Backoff.Max = c.MaxDelay
	tc.Threshold = c.RestartThreshold
	tc.Window = c.FailureWindow
	tc.ExtendedBase = c.ExtendedBaseDelay
	tc.ExtendedMax = c.ExtendedMaxDelay
	return tc
}
