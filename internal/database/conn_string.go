package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/onit-labs/xmtp-bot/internal/config"
)

// BuildConnString builds a postgres:// URL from config. User and password are
// escaped so special characters survive; sslmode falls back to "prefer".
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
