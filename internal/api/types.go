package api

import "github.com/rickgao/clubhub/internal/model"

// DefaultBaseURL is the backend used when none is configured.
const DefaultBaseURL = "http://localhost:8080"

// HealthResponse from GET /health. Backends that answer with a non-JSON
// body leave it zero.
type HealthResponse struct {
	Status string `json:"status"`
}

// CreateEventRequest is the body of POST /api/events.
type CreateEventRequest struct {
	ID    int    `json:"id"`
	Club  string `json:"club"`
	Event string `json:"event"`
	Date  string `json:"date"`
	Time  string `json:"time"`
	Venue string `json:"venue"`
	Desc  string `json:"desc"`
}

// CreateEventResponse from POST /api/events.
type CreateEventResponse struct {
	Success bool         `json:"success"`
	Event   *model.Event `json:"event,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ErrorResponse is the body of a failed backend request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
