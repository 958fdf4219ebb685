// Package club is the club-side view-model: the event roll form and its log,
// plus the student request flows that go over the shared socket.
package club

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/clubhub/internal/connection"
	"github.com/rickgao/clubhub/internal/model"
	"github.com/rickgao/clubhub/internal/router"
)

var (
	// ErrUnavailable is returned by socket flows while the socket is not connected.
	ErrUnavailable = errors.New("club: socket not connected")

	// ErrInvalidForm is returned when a form is missing fields or malformed.
	ErrInvalidForm = errors.New("club: invalid form")
)

// Log entry statuses.
const (
	StatusPending  = model.EventPending
	StatusApproved = model.EventApproved
	StatusRejected = model.EventRejected
)

// Conn is the part of the Connection Manager the console uses.
type Conn interface {
	Status() connection.Status
	SendMessage(msg connection.Message)
}

// EventAPI persists rolled events.
type EventAPI interface {
	CreateEvent(ctx context.Context, e model.Event) (*model.Event, error)
}

// EventForm is the event roll form as entered.
type EventForm struct {
	Name        string
	Date        string // YYYY-MM-DD
	StartTime   string // HH:MM, 24-hour
	EndTime     string // optional
	Description string
}

// LogEntry is one rolled event in the club's log.
type LogEntry struct {
	ID           int
	EventName    string
	Description  string
	Date         string // display form, e.g. "OCT 15"
	Time         string // display form, e.g. "6:00 PM"
	Status       string
	Notification string
}

// Request is a student request tracked by the console.
type Request struct {
	RequestID string
	Kind      string
	ClubName  string
	Status    string // model.Request* value
	UpdatedAt time.Time
}

// Console is the view-model of one club's page.
type Console struct {
	club   string
	conn   Conn
	api    EventAPI
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	logs     []LogEntry // newest first
	lastID   int
	requests map[string]*Request
	checks   map[string]string // status-check request ID → target request ID
	members  []model.ClubUser
}

// Monitor is the member overview of the club.
type Monitor struct {
	Users  []model.ClubUser
	Total  int
	Online int
}

// New creates a Console for the named club.
func New(clubName string, conn Conn, api EventAPI, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		club:     clubName,
		conn:     conn,
		api:      api,
		logger:   logger.With("component", "club", "club", clubName),
		now:      time.Now,
		requests: make(map[string]*Request),
		checks:   make(map[string]string),
	}
}

// Register installs the console's handlers on r.
func (c *Console) Register(r *router.Router) {
	r.Handle(model.KindSnapshot, c.handleSnapshot)
	r.Handle(model.KindRequestStatus, c.handleRequestStatus)
}

// Club returns the club name.
func (c *Console) Club() string {
	return c.club
}

// Available reports whether the socket flows can be used.
func (c *Console) Available() bool {
	return c.conn.Status() == connection.StatusConnected
}

// Monitor returns the club members and how many of them are online.
func (c *Console) Monitor() Monitor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f := model.EventsFile{ClubUsers: c.members}
	return Monitor{
		Users:  append([]model.ClubUser(nil), c.members...),
		Total:  len(c.members),
		Online: f.OnlineCount(),
	}
}

// SetMembers replaces the member list, typically from the events file at
// startup. Later snapshots that carry members replace it again.
func (c *Console) SetMembers(users []model.ClubUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = append([]model.ClubUser(nil), users...)
}

// Logs returns the event log, newest first.
func (c *Console) Logs() []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]LogEntry(nil), c.logs...)
}

// CreateEvent validates form, adds a pending entry to the log and submits the
// event to the backend. The log entry is kept when the submission fails.
func (c *Console) CreateEvent(ctx context.Context, form EventForm) (LogEntry, error) {
	if err := form.validate(); err != nil {
		return LogEntry{}, err
	}

	date, err := FormatDate(form.Date)
	if err != nil {
		return LogEntry{}, err
	}
	start, err := FormatTime(form.StartTime)
	if err != nil {
		return LogEntry{}, err
	}

	c.mu.Lock()
	id := c.nextIDLocked()
	entry := LogEntry{
		ID:          id,
		EventName:   form.Name,
		Description: form.Description,
		Date:        date,
		Time:        start,
		Status:      StatusPending,
	}
	c.logs = append([]LogEntry{entry}, c.logs...)
	c.mu.Unlock()

	_, err = c.api.CreateEvent(ctx, model.Event{
		ID:    id,
		Club:  c.club,
		Event: form.Name,
		Date:  date,
		Time:  start,
		Venue: "TBD",
		Desc:  form.Description,
	})
	if err != nil {
		c.logger.Error("failed to save event", "id", id, "error", err)
		return entry, fmt.Errorf("save event %d: %w", id, err)
	}

	c.logger.Info("event rolled", "id", id, "event", form.Name, "date", date)
	return entry, nil
}

// RequestClubCreation asks the admins to create a new club network.
func (c *Console) RequestClubCreation(name, rollNo, clubName, description string) (string, error) {
	if name == "" || rollNo == "" || clubName == "" {
		return "", fmt.Errorf("%w: name, roll number and club name are required", ErrInvalidForm)
	}
	req := model.ClubCreationRequest{
		Kind:        model.KindClubCreationRequest,
		RequestID:   model.NewRequestID(),
		Name:        name,
		RollNo:      rollNo,
		ClubName:    clubName,
		Description: description,
	}
	return c.sendTracked(req.Kind, req.RequestID, clubName, req)
}

// RequestAdminAccess asks for admin page access for a club.
func (c *Console) RequestAdminAccess(name, rollNo, clubName string) (string, error) {
	if name == "" || rollNo == "" || clubName == "" {
		return "", fmt.Errorf("%w: name, roll number and club name are required", ErrInvalidForm)
	}
	req := model.AdminAccessRequest{
		Kind:      model.KindAdminAccessRequest,
		RequestID: model.NewRequestID(),
		Name:      name,
		RollNo:    rollNo,
		ClubName:  clubName,
	}
	return c.sendTracked(req.Kind, req.RequestID, clubName, req)
}

// CheckRequestStatus asks the server for the status of an earlier request.
// The answer arrives as a request_status message and updates Request.
func (c *Console) CheckRequestStatus(targetRequestID string) (string, error) {
	if targetRequestID == "" {
		return "", fmt.Errorf("%w: request id is required", ErrInvalidForm)
	}
	if !c.Available() {
		return "", ErrUnavailable
	}

	req := model.StatusCheck{
		Kind:            model.KindCheckRequestStatus,
		RequestID:       model.NewRequestID(),
		TargetRequestID: targetRequestID,
	}
	msg, err := model.Encode(req)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.checks[req.RequestID] = targetRequestID
	c.mu.Unlock()

	c.conn.SendMessage(msg)
	return req.RequestID, nil
}

// Request returns a tracked student request.
func (c *Console) Request(requestID string) (Request, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.requests[requestID]
	if !ok {
		return Request{}, false
	}
	return *r, true
}

func (c *Console) sendTracked(kind, requestID, clubName string, payload any) (string, error) {
	if !c.Available() {
		c.logger.Warn("request unavailable while disconnected", "kind", kind)
		return "", ErrUnavailable
	}

	msg, err := model.Encode(payload)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.requests[requestID] = &Request{
		RequestID: requestID,
		Kind:      kind,
		ClubName:  clubName,
		Status:    model.RequestPending,
		UpdatedAt: c.now(),
	}
	c.mu.Unlock()

	c.conn.SendMessage(msg)
	c.logger.Info("request sent", "kind", kind, "request_id", requestID)
	return requestID, nil
}

// nextIDLocked returns a millisecond-clock ID greater than any issued before.
func (c *Console) nextIDLocked() int {
	id := int(c.now().UnixMilli())
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id
	return id
}

func (c *Console) handleSnapshot(msg connection.Message) {
	var snap model.Snapshot
	if err := model.Decode(msg, &snap); err != nil {
		c.logger.Error("failed to decode snapshot", "error", err)
		return
	}

	decided := make(map[int]string)
	for _, e := range snap.Events {
		if e.Status == StatusApproved || e.Status == StatusRejected {
			decided[e.ID] = e.Status
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.ClubUsers != nil {
		c.members = snap.ClubUsers
	}

	for i := range c.logs {
		status, ok := decided[c.logs[i].ID]
		if !ok || c.logs[i].Status == status {
			continue
		}
		c.logs[i].Status = status
		c.logs[i].Notification = notification(c.logs[i].EventName, status)
		c.logger.Info("event decided", "id", c.logs[i].ID, "status", status)
	}
}

func (c *Console) handleRequestStatus(msg connection.Message) {
	var rs model.RequestStatus
	if err := model.Decode(msg, &rs); err != nil {
		c.logger.Error("failed to decode request status", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := rs.TargetRequestID
	if target == "" {
		target = c.checks[rs.RequestID]
	}
	delete(c.checks, rs.RequestID)

	r, ok := c.requests[target]
	if !ok {
		// Checks for requests made elsewhere are still recorded.
		if target == "" {
			return
		}
		r = &Request{RequestID: target}
		c.requests[target] = r
	}
	r.Status = rs.Status
	r.UpdatedAt = c.now()
}

func notification(eventName, status string) string {
	if status == StatusApproved {
		return fmt.Sprintf("%s was approved by the admins", eventName)
	}
	return fmt.Sprintf("%s was rejected by the admins", eventName)
}

func (f EventForm) validate() error {
	var missing []string
	if strings.TrimSpace(f.Name) == "" {
		missing = append(missing, "event name")
	}
	if strings.TrimSpace(f.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(f.StartTime) == "" {
		missing = append(missing, "start time")
	}
	if strings.TrimSpace(f.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidForm, strings.Join(missing, ", "))
	}
	return nil
}

// FormatDate turns "2024-10-15" into "OCT 15".
func FormatDate(s string) (string, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return "", fmt.Errorf("%w: date %q", ErrInvalidForm, s)
	}
	return fmt.Sprintf("%s %d", strings.ToUpper(t.Format("Jan")), t.Day()), nil
}

// FormatTime turns "18:00" into "6:00 PM".
func FormatTime(s string) (string, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", fmt.Errorf("%w: time %q", ErrInvalidForm, s)
	}
	return t.Format("3:04 PM"), nil
}
