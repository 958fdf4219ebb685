package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/clubhub/internal/model"
)

// ErrInvalidEvent is returned when an event is missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// Store persists rolled events.
type Store interface {
	// Append stores e and returns it as stored. A zero ID is assigned.
	Append(ctx context.Context, e model.Event) (model.Event, error)

	// List returns all events in submission order.
	List(ctx context.Context) ([]model.Event, error)
}

// Pinger is implemented by stores with a backing service to check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// prepare validates e and fills defaults.
func prepare(e model.Event, now time.Time) (model.Event, error) {
	if e.Event == "" {
		return e, fmt.Errorf("%w: event name is required", ErrInvalidEvent)
	}
	if e.Club == "" {
		return e, fmt.Errorf("%w: club is required", ErrInvalidEvent)
	}
	if e.ID == 0 {
		e.ID = int(now.UnixMilli())
	}
	if e.Venue == "" {
		e.Venue = "TBD"
	}
	return e, nil
}
