package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *BridgeConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.XMTP.Env != "dev" && c.XMTP.Env != "production" {
		return fmt.Errorf("xmtp.env must be dev or production, got %q", c.XMTP.Env)
	}

	if !strings.Contains(c.Bot.URLTemplate, "{conversationId}") {
		return errors.New("bot.url_template must contain {conversationId}")
	}
	if c.Bot.MaxConnections < 1 {
		return errors.New("bot.max_connections must be >= 1")
	}
	if c.Bot.MaxRequestsPerConnection < 1 {
		return errors.New("bot.max_requests_per_connection must be >= 1")
	}

	if c.Onit.APIKey == "" {
		return errors.New("onit.api_key is required")
	}
	if c.Onit.RateLimit < 0 {
		return errors.New("onit.rate_limit must be >= 0")
	}

	if c.Streams.RestartThreshold < 1 {
		return errors.New("streams.restart_threshold must be >= 1")
	}
	if c.Streams.MaxDelay < c.Streams.BaseDelay {
		return fmt.Errorf("streams.max_delay (%s) cannot be less than base_delay (%s)", c.Streams.MaxDelay, c.Streams.BaseDelay)
	}
	if c.Streams.ExtendedMaxDelay < c.Streams.ExtendedBaseDelay {
		return fmt.Errorf("streams.extended_max_delay (%s) cannot be less than extended_base_delay (%s)", c.Streams.ExtendedMaxDelay, c.Streams.ExtendedBaseDelay)
	}

	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Database.BatchSize < 1 {
		return errors.New("database.batch_size must be >= 1")
	}
	if c.Database.HistorySize < 1 {
		return errors.New("database.history_size must be >= 1")
	}
	if c.Database.Postgres.Enabled() {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
