package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/clubhub/internal/config"
)

// ConnString returns the DSN for cfg. An explicit URL (store.postgres.url or
// DATABASE_URL) is used as is; otherwise the DSN is assembled from the
// individual fields, with port and sslmode falling back to the config
// defaults.
func ConnString(cfg config.DBConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}

	port := cfg.Port
	if port == 0 {
		port = config.DefaultDBPort
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
