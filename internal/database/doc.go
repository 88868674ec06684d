// Package database opens the optional PostgreSQL pool that backs the bridge's
// persistent state (welcomed conversations, processed messages and the
// exchange log). When no host is configured the bridge runs entirely in memory.
package database
