package router

import "github.com/rickgao/clubhub/internal/connection"

// MessageHandler handles one message of a registered kind.
type MessageHandler func(msg connection.Message)

// StatusHandler handles a connection status change.
type StatusHandler func(status connection.Status)

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64 // Messages with at least one handler
	UnknownMessages  int64 // Messages whose kind has no handler
	StatusChanges    int64
}
