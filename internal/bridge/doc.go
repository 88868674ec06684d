// Package bridge assembles a running bridge instance from configuration: the
// chat gateway streams under supervision, the bot connection pool, the market
// catalog and poller, persistence and the monitoring server.
package bridge
