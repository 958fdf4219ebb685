package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Status is the manager's view of the transport's health.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Message is a JSON object frame. The "kind" field is the discriminant;
// every other field depends on the kind.
type Message map[string]any

// Kind returns the message discriminant, or "" if it is missing or not a string.
func (m Message) Kind() string {
	kind, _ := m["kind"].(string)
	return kind
}

// EventType identifies what changed in an observer notification.
type EventType int

const (
	EventStatus  EventType = iota // Status changed
	EventMessage                  // A new last message arrived
)

func (t EventType) String() string {
	if t == EventMessage {
		return "message"
	}
	return "status"
}

// Event is delivered to observers after each mutation.
type Event struct {
	Type    EventType
	Status  Status  // Status after the mutation
	Message Message // Last message after the mutation (nil until the first frame)
}

// Observer is called synchronously after each status change or new message.
type Observer func(Event)

// TransportConfig configures the WebSocket transport.
type TransportConfig struct {
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // Interval between client pings (0 = no pings)
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL            string        // WebSocket URL (e.g., ws://localhost:8080)
	ReconnectDelay time.Duration // Constant delay before each reconnection attempt
	Transport      TransportConfig
}

// DefaultURL is used when ManagerConfig.URL is empty.
const DefaultURL = "ws://localhost:8080"

// DefaultReconnectDelay is the fixed wait between a close and the next attempt.
const DefaultReconnectDelay = 3 * time.Second

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		URL:            DefaultURL,
		ReconnectDelay: DefaultReconnectDelay,
		Transport:      DefaultTransportConfig(),
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Status          Status
	ConnectAttempts int64
	FramesReceived  int64
	ParseErrors     int64
	MessagesSent    int64
	SendsDropped    int64
}
