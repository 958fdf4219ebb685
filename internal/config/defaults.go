package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultSocketURL        = "ws://localhost:8080"
	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultBackendURL       = "http://localhost:8080"
	DefaultBackendTimeout   = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultKeepaliveEvery   = 12 * time.Minute
	DefaultKeepaliveTimeout = 30 * time.Second
	DefaultStoreDriver      = StoreFile
	DefaultStorePath        = "events.json"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultServerPort       = 8080
	DefaultLogLevel         = "info"
)

func (c *Config) applyDefaults() {
	// Socket defaults
	if c.Socket.URL == "" {
		c.Socket.URL = DefaultSocketURL
	}
	if c.Socket.ReconnectDelay == 0 {
		c.Socket.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Socket.HandshakeTimeout == 0 {
		c.Socket.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Socket.PingInterval == 0 {
		c.Socket.PingInterval = DefaultPingInterval
	}
	if c.Socket.PingTimeout == 0 {
		c.Socket.PingTimeout = DefaultPingTimeout
	}
	if c.Socket.WriteTimeout == 0 {
		c.Socket.WriteTimeout = DefaultWriteTimeout
	}

	// Backend defaults
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Backend.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.Backend.MaxRetries = &retries
	}

	// Keepalive defaults
	if c.Keepalive.Interval == 0 {
		c.Keepalive.Interval = DefaultKeepaliveEvery
	}
	if c.Keepalive.Timeout == 0 {
		c.Keepalive.Timeout = DefaultKeepaliveTimeout
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	applyDBDefaults(&c.Store.Postgres)

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
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
