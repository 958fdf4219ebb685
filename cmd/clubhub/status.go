package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rickgao/clubhub/internal/club"
	"github.com/rickgao/clubhub/internal/connection"
	"github.com/rickgao/clubhub/internal/dashboard"
	"github.com/rickgao/clubhub/internal/keepalive"
	"github.com/rickgao/clubhub/internal/router"
	"github.com/rickgao/clubhub/internal/version"
)

// app exposes the running components over HTTP for operators.
type app struct {
	mgr     *connection.Manager
	router  *router.Router
	dash    *dashboard.Dashboard
	console *club.Console
	pinger  *keepalive.Pinger
	logger  *slog.Logger
}

// handler serves the status endpoints and passes everything else to store.
func (a *app) handler(store http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", store)

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		conn := a.mgr.Stats()
		routed := a.router.Stats()
		ka := a.pinger.Status()

		writeJSON(w, http.StatusOK, map[string]any{
			"version": version.String(),
			"socket": map[string]any{
				"url":              a.mgr.URL(),
				"status":           conn.Status.String(),
				"closed":           a.mgr.Closed(),
				"connect_attempts": conn.ConnectAttempts,
				"frames_received":  conn.FramesReceived,
				"parse_errors":     conn.ParseErrors,
				"messages_sent":    conn.MessagesSent,
				"sends_dropped":    conn.SendsDropped,
				"last_kind":        a.mgr.LastMessage().Kind(),
			},
			"router": map[string]any{
				"received": routed.MessagesReceived,
				"routed":   routed.MessagesRouted,
				"unknown":  routed.UnknownMessages,
			},
			"dashboard": map[string]any{
				"available": a.dash.Available(),
				"snapshots": a.dash.SnapshotCount(),
				"pending":   len(a.dash.Pending()),
			},
			"keepalive": map[string]any{
				"state":        ka.State.String(),
				"url":          ka.URL,
				"pings":        ka.Pings,
				"failures":     ka.Failures,
				"last_success": formatTime(ka.LastSuccess),
				"last_error":   ka.LastError,
			},
		})
	})

	mux.HandleFunc("GET /dashboard/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"groups": a.dash.EventsByDate()})
	})

	mux.HandleFunc("GET /dashboard/calendar", func(w http.ResponseWriter, r *http.Request) {
		month, day, err := parseCalendarQuery(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		resp := map[string]any{
			"month": month.String(),
			"days":  a.dash.DaysWithEvents(month),
		}
		if day > 0 {
			resp["day"] = day
			resp["events"] = a.dash.EventsOn(month, day)
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /club/monitor", func(w http.ResponseWriter, r *http.Request) {
		m := a.console.Monitor()
		writeJSON(w, http.StatusOK, map[string]any{
			"club":   a.console.Club(),
			"total":  m.Total,
			"online": m.Online,
			"users":  m.Users,
		})
	})

	mux.HandleFunc("GET /club/logs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"club": a.console.Club(),
			"logs": a.console.Logs(),
		})
	})

	mux.HandleFunc("POST /keepalive/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
		defer cancel()

		err := a.pinger.PingNow(ctx)
		switch {
		case errors.Is(err, keepalive.ErrPingInFlight):
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
		case err != nil:
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"state": a.pinger.Status().State.String()})
		}
	})

	return mux
}

// parseCalendarQuery reads ?month=1-12 and the optional ?day=1-31.
func parseCalendarQuery(r *http.Request) (time.Month, int, error) {
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, errors.New("month must be 1-12")
	}

	day := 0
	if v := r.URL.Query().Get("day"); v != "" {
		day, err = strconv.Atoi(v)
		if err != nil || day < 1 || day > 31 {
			return 0, 0, errors.New("day must be 1-31")
		}
	}
	return time.Month(month), day, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
