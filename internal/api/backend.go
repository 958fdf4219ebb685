package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/clubhub/internal/model"
)

// ErrRejected is returned when the backend answers a request with
// success=false.
var ErrRejected = errors.New("backend rejected request")

// Health checks GET /health. Any 2xx response is healthy.
func (c *Client) Health(ctx context.Context) error {
	if err := c.get(ctx, "/health", nil); err != nil {
		return fmt.Errorf("health check %s: %w", c.baseURL, err)
	}
	return nil
}

// CreateEvent submits e to POST /api/events and returns the stored event.
func (c *Client) CreateEvent(ctx context.Context, e model.Event) (*model.Event, error) {
	req := CreateEventRequest{
		ID:    e.ID,
		Club:  e.Club,
		Event: e.Event,
		Date:  e.Date,
		Time:  e.Time,
		Venue: e.Venue,
		Desc:  e.Desc,
	}

	var resp CreateEventResponse
	if err := c.post(ctx, "/api/events", req, &resp); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	if !resp.Success {
		return nil, fmt.Errorf("create event: %w: %s", ErrRejected, resp.Error)
	}
	if resp.Event == nil {
		stored := e
		return &stored, nil
	}
	return resp.Event, nil
}
