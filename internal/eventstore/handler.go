package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/clubhub/internal/model"
)

// maxBodyBytes bounds a POST /api/events body.
const maxBodyBytes = 1 << 20

type createResponse struct {
	Success bool         `json:"success"`
	Event   *model.Event `json:"event,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Handler serves the event store over HTTP.
func Handler(store Store, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "eventstore")

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/events", func(w http.ResponseWriter, r *http.Request) {
		var e model.Event
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&e); err != nil {
			logger.Warn("invalid event body", "error", err)
			writeJSON(w, http.StatusBadRequest, createResponse{Error: "Invalid request body"})
			return
		}

		stored, err := store.Append(r.Context(), e)
		if errors.Is(err, ErrInvalidEvent) {
			writeJSON(w, http.StatusBadRequest, createResponse{Error: err.Error()})
			return
		}
		if err != nil {
			logger.Error("failed to save event", "error", err)
			writeJSON(w, http.StatusInternalServerError, createResponse{Error: "Failed to save event"})
			return
		}

		logger.Info("event saved", "id", stored.ID, "club", stored.Club, "event", stored.Event)
		writeJSON(w, http.StatusOK, createResponse{Success: true, Event: &stored})
	})

	mux.HandleFunc("GET /api/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := store.List(r.Context())
		if err != nil {
			logger.Error("failed to list events", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Failed to load events"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "events": events})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if p, ok := store.(Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if err := p.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["store"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["store"] = "connected"
			}
		} else {
			health.Components["store"] = "file"
		}

		status := http.StatusOK
		if health.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
