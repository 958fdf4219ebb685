package config

import "time"

// Config is the root configuration for a clubhub instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Socket    SocketConfig    `yaml:"socket"`
	Backend   BackendConfig   `yaml:"backend"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID   string `yaml:"id"`
	Club string `yaml:"club"` // Club the console submits events for
}

// SocketConfig holds Connection Manager settings.
type SocketConfig struct {
	URL              string        `yaml:"url"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// BackendConfig holds backend HTTP API settings.
type BackendConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"` // Default: 3; 0 disables retries
}

// Retries returns the configured retry count.
func (b BackendConfig) Retries() int {
	if b.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *b.MaxRetries
}

// KeepaliveConfig holds keep-alive pinger settings.
type KeepaliveConfig struct {
	Enabled  *bool         `yaml:"enabled"` // Default: true
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether the pinger should run.
func (k KeepaliveConfig) IsEnabled() bool {
	return k.Enabled == nil || *k.Enabled
}

// Store drivers.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// StoreConfig selects the event store backend.
type StoreConfig struct {
	Driver   string   `yaml:"driver"` // "file" or "postgres"
	Path     string   `yaml:"path"`   // JSON file for the file driver
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	URL      string `yaml:"url"` // Full DSN; when set the fields below except the pool sizes are ignored
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ServerConfig holds the event store HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
