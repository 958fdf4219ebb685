// Package dashboard is the admin view-model: the latest server snapshot plus
// the accept/reject actions sent back over the shared socket.
package dashboard

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/clubhub/internal/connection"
	"github.com/rickgao/clubhub/internal/model"
	"github.com/rickgao/clubhub/internal/router"
)

// ErrUnavailable is returned by actions while the socket is not connected.
var ErrUnavailable = errors.New("dashboard: socket not connected")

// maxTracked bounds the requests kept for Pending and Outcome.
const maxTracked = 256

// Conn is the part of the Connection Manager the dashboard uses.
type Conn interface {
	Status() connection.Status
	SendMessage(msg connection.Message)
}

// DateGroup holds the events sharing one date.
type DateGroup struct {
	Date   string
	Events []model.Event
}

// Outcome is the state of one request sent by the dashboard.
type Outcome struct {
	RequestID string
	Kind      string
	Done      bool
	OK        bool   // set when Done: ack (true) or error (false)
	Message   string // server text from the reply, if any
}

// Dashboard tracks the admin state pushed by the server.
type Dashboard struct {
	conn   Conn
	logger *slog.Logger

	mu        sync.RWMutex
	snapshot  *model.Snapshot
	snapshots int
	outcomes  map[string]*Outcome
	order     []string // request IDs in send order, at most maxTracked
}

// New creates a Dashboard sending through conn.
func New(conn Conn, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		conn:     conn,
		logger:   logger.With("component", "dashboard"),
		outcomes: make(map[string]*Outcome),
	}
}

// Register installs the dashboard's handlers on r.
func (d *Dashboard) Register(r *router.Router) {
	r.Handle(model.KindSnapshot, d.handleSnapshot)
	r.Handle(model.KindAck, d.handleReply)
	r.Handle(model.KindError, d.handleReply)
	r.HandleStatus(d.handleStatus)
}

// Available reports whether actions can be sent.
func (d *Dashboard) Available() bool {
	return d.conn.Status() == connection.StatusConnected
}

// Snapshot returns the latest snapshot and whether one has arrived.
func (d *Dashboard) Snapshot() (model.Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snapshot == nil {
		return model.Snapshot{}, false
	}
	return *d.snapshot, true
}

// SnapshotCount returns how many snapshots have been applied.
func (d *Dashboard) SnapshotCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshots
}

// EventsByDate groups the snapshot's events by date. Groups appear in the
// order their date is first seen; events keep their snapshot order.
func (d *Dashboard) EventsByDate() []DateGroup {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.snapshot == nil {
		return nil
	}

	var groups []DateGroup
	index := make(map[string]int)
	for _, e := range d.snapshot.Events {
		i, ok := index[e.Date]
		if !ok {
			i = len(groups)
			index[e.Date] = i
			groups = append(groups, DateGroup{Date: e.Date})
		}
		groups[i].Events = append(groups[i].Events, e)
	}
	return groups
}

// AcceptEvent approves a rolled event. It returns the request ID.
func (d *Dashboard) AcceptEvent(eventID int) (string, error) {
	req := model.NewEventDecision(true, eventID, "")
	return d.send(req.Kind, req.RequestID, req)
}

// RejectEvent rejects a rolled event with a reason shown to the club.
func (d *Dashboard) RejectEvent(eventID int, reason string) (string, error) {
	req := model.NewEventDecision(false, eventID, reason)
	return d.send(req.Kind, req.RequestID, req)
}

// AcceptAuthRequest approves a club-creation or admin-access request.
func (d *Dashboard) AcceptAuthRequest(id int) (string, error) {
	req := model.NewAuthDecision(true, id)
	return d.send(req.Kind, req.RequestID, req)
}

// RejectAuthRequest rejects a club-creation or admin-access request.
func (d *Dashboard) RejectAuthRequest(id int) (string, error) {
	req := model.NewAuthDecision(false, id)
	return d.send(req.Kind, req.RequestID, req)
}

// RequestSnapshot asks the server for a fresh snapshot.
func (d *Dashboard) RequestSnapshot() (string, error) {
	return d.requestSnapshot(d.Available())
}

func (d *Dashboard) requestSnapshot(connected bool) (string, error) {
	req := model.SnapshotRequest{Kind: model.KindGetSnapshot, RequestID: model.NewRequestID()}
	return d.sendIf(connected, req.Kind, req.RequestID, req)
}

// Pending returns the unresolved requests in send order.
func (d *Dashboard) Pending() []Outcome {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var pending []Outcome
	for _, id := range d.order {
		if o := d.outcomes[id]; !o.Done {
			pending = append(pending, *o)
		}
	}
	return pending
}

// Outcome returns the state of the request with the given ID. Only the most
// recent requests are kept; older resolved ones are forgotten first.
func (d *Dashboard) Outcome(requestID string) (Outcome, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.outcomes[requestID]
	if !ok {
		return Outcome{}, false
	}
	return *o, true
}

func (d *Dashboard) send(kind, requestID string, payload any) (string, error) {
	return d.sendIf(d.Available(), kind, requestID, payload)
}

func (d *Dashboard) sendIf(connected bool, kind, requestID string, payload any) (string, error) {
	if !connected {
		d.logger.Warn("action unavailable while disconnected", "kind", kind)
		return "", ErrUnavailable
	}

	msg, err := model.Encode(payload)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.outcomes[requestID] = &Outcome{RequestID: requestID, Kind: kind}
	d.order = append(d.order, requestID)
	d.pruneLocked()
	d.mu.Unlock()

	d.conn.SendMessage(msg)
	d.logger.Debug("request sent", "kind", kind, "request_id", requestID)
	return requestID, nil
}

// pruneLocked drops tracked requests beyond maxTracked, oldest resolved
// first, then oldest pending.
func (d *Dashboard) pruneLocked() {
	excess := len(d.order) - maxTracked
	if excess <= 0 {
		return
	}

	drop := make(map[string]bool, excess)
	for _, id := range d.order {
		if len(drop) == excess {
			break
		}
		if d.outcomes[id].Done {
			drop[id] = true
		}
	}
	for _, id := range d.order {
		if len(drop) == excess {
			break
		}
		drop[id] = true
	}

	kept := d.order[:0]
	for _, id := range d.order {
		if drop[id] {
			delete(d.outcomes, id)
			continue
		}
		kept = append(kept, id)
	}
	d.order = kept
}

func (d *Dashboard) handleSnapshot(msg connection.Message) {
	var snap model.Snapshot
	if err := model.Decode(msg, &snap); err != nil {
		d.logger.Error("failed to decode snapshot", "error", err)
		return
	}

	d.mu.Lock()
	d.snapshot = &snap
	d.snapshots++
	d.mu.Unlock()

	d.logger.Debug("snapshot applied",
		"events", len(snap.Events),
		"auth_requests", len(snap.AuthRequests),
	)
}

func (d *Dashboard) handleReply(msg connection.Message) {
	var reply model.Reply
	if err := model.Decode(msg, &reply); err != nil {
		d.logger.Error("failed to decode reply", "error", err)
		return
	}

	d.mu.Lock()
	o, ok := d.outcomes[reply.RequestID]
	if ok && !o.Done {
		o.Done = true
		o.OK = reply.Kind == model.KindAck
		o.Message = reply.Message
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Debug("reply for unknown request", "kind", reply.Kind, "request_id", reply.RequestID)
		return
	}
	if reply.Kind == model.KindError {
		d.logger.Warn("request failed", "kind", o.Kind, "request_id", reply.RequestID, "message", reply.Message)
	}
}

func (d *Dashboard) handleStatus(s connection.Status) {
	if s != connection.StatusConnected {
		return
	}
	if _, err := d.requestSnapshot(true); err != nil {
		d.logger.Warn("failed to request snapshot", "error", err)
	}
}
