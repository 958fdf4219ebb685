package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := validateURL("socket.url", c.Socket.URL, "ws", "wss"); err != nil {
		return err
	}
	if c.Socket.ReconnectDelay <= 0 {
		return errors.New("socket.reconnect_delay must be > 0")
	}
	if c.Socket.PingInterval > 0 && c.Socket.PingTimeout <= c.Socket.PingInterval {
		return fmt.Errorf("socket.ping_timeout (%s) must exceed ping_interval (%s)", c.Socket.PingTimeout, c.Socket.PingInterval)
	}

	if err := validateURL("backend.url", c.Backend.URL, "http", "https"); err != nil {
		return err
	}
	if c.Backend.Retries() < 0 {
		return errors.New("backend.max_retries must be >= 0")
	}

	if c.Keepalive.IsEnabled() && c.Keepalive.Interval <= 0 {
		return errors.New("keepalive.interval must be > 0")
	}

	switch c.Store.Driver {
	case StoreFile:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the file driver")
		}
	case StorePostgres:
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", StoreFile, StorePostgres, c.Store.Driver)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s must include a host", field)
			}
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %v, got %q", field, schemes, raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.URL != "" {
		// The DSN carries the password, so it is never echoed back.
		u, err := url.Parse(db.URL)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") || u.Host == "" {
			return fmt.Errorf("%s.url must be a postgres:// URL with a host", prefix)
		}
		return db.validatePool(prefix)
	}

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
	return db.validatePool(prefix)
}

func (db *DBConfig) validatePool(prefix string) error {
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
