package connection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

// Option configures a Manager.
type Option func(*Manager)

// WithDialer sets the transport dialer (default: gorilla/websocket).
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithClock sets the clock used for the reconnection timer.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver registers an observer before the first connection attempt,
// so it sees every notification.
func WithObserver(fn Observer) Option {
	return func(m *Manager) {
		m.subscribe(fn)
	}
}

// Manager owns the single shared socket. Construct one per process with New
// and pass it to every consumer.
//
// Transport callbacks and the reconnection timer are serialized through
// dispatchMu, so state transitions and the observer calls they trigger never
// overlap. Observers run on that path and must not block.
type Manager struct {
	cfg    ManagerConfig
	dialer Dialer
	clock  clockwork.Clock
	logger *slog.Logger

	dispatchMu sync.Mutex

	// State
	mu        sync.RWMutex
	status    Status
	last      Message
	transport Transport
	attempt   uint64 // ID of the current connection attempt
	timer     clockwork.Timer
	closed    bool

	// Observers, in registration order
	obsMu     sync.RWMutex
	observers []observerEntry
	nextObsID int

	// Stats
	connectAttempts atomic.Int64
	framesReceived  atomic.Int64
	parseErrors     atomic.Int64
	messagesSent    atomic.Int64
	sendsDropped    atomic.Int64
}

type observerEntry struct {
	id int
	fn Observer
}

// New creates the Connection Manager and starts the first connection attempt.
// The manager is in StatusConnecting when New returns.
func New(cfg ManagerConfig, opts ...Option) *Manager {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}

	m := &Manager{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		status: StatusConnecting,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.dialer == nil {
		m.dialer = NewDialer(cfg.Transport, m.logger)
	}

	m.dispatchMu.Lock()
	m.connect()
	m.dispatchMu.Unlock()

	return m
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LastMessage returns the most recently received message, or nil if none has
// arrived yet. Callers must not modify it.
func (m *Manager) LastMessage() Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// URL returns the endpoint the manager connects to.
func (m *Manager) URL() string {
	return m.cfg.URL
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		Status:          m.Status(),
		ConnectAttempts: m.connectAttempts.Load(),
		FramesReceived:  m.framesReceived.Load(),
		ParseErrors:     m.parseErrors.Load(),
		MessagesSent:    m.messagesSent.Load(),
		SendsDropped:    m.sendsDropped.Load(),
	}
}

// Subscribe registers an observer and returns a function that removes it.
// Observers are called synchronously after every status change and every new
// message, in the order the transport delivered them.
func (m *Manager) Subscribe(fn Observer) (unsubscribe func()) {
	id := m.subscribe(fn)

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(id) })
	}
}

func (m *Manager) subscribe(fn Observer) int {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	m.nextObsID++
	m.observers = append(m.observers, observerEntry{id: m.nextObsID, fn: fn})
	return m.nextObsID
}

func (m *Manager) unsubscribe(id int) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	// Copy on write: notify may be iterating the old slice.
	kept := make([]observerEntry, 0, len(m.observers))
	for _, e := range m.observers {
		if e.id != id {
			kept = append(kept, e)
		}
	}
	m.observers = kept
}

// SendMessage serializes msg and writes it to the open socket.
//
// Delivery is best-effort: while the status is not StatusConnected the message
// is dropped with a warning. Encoding and write failures are logged, never
// returned.
func (m *Manager) SendMessage(msg Message) {
	m.mu.RLock()
	status := m.status
	t := m.transport
	m.mu.RUnlock()

	if status != StatusConnected || t == nil {
		m.sendsDropped.Add(1)
		m.logger.Warn("cannot send: socket not connected",
			"kind", msg.Kind(),
			"status", status,
		)
		return
	}

	data, err := encode(msg)
	if err != nil {
		m.sendsDropped.Add(1)
		m.logger.Error("failed to encode message", "kind", msg.Kind(), "error", err)
		return
	}

	if err := t.Send(data); err != nil {
		m.sendsDropped.Add(1)
		m.logger.Warn("failed to send message", "kind", msg.Kind(), "error", err)
		return
	}

	m.messagesSent.Add(1)
}

// Close tears the manager down: the pending reconnection timer is cancelled,
// the socket is closed and no further connection attempts are made.
// Close is idempotent and safe to call from an observer.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	timer := m.timer
	m.timer = nil
	t := m.transport
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	m.logger.Info("connection manager closed")

	if t != nil {
		return t.Close()
	}
	return nil
}

// connect starts a new connection attempt. Caller holds dispatchMu.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.transport != nil && m.status == StatusConnected {
		m.mu.Unlock()
		return
	}
	m.attempt++
	id := m.attempt
	ev, changed := m.setStatusLocked(StatusConnecting)
	m.mu.Unlock()

	n := m.connectAttempts.Add(1)
	m.logger.Info("connecting", "url", m.cfg.URL, "attempt", n)

	if changed {
		m.notify(ev)
	}

	t := m.dialer.Dial(m.cfg.URL, &attemptHandler{m: m, id: id})

	m.mu.Lock()
	stale := m.closed || m.attempt != id
	if !stale {
		m.transport = t
	}
	m.mu.Unlock()

	// Torn down (possibly by an observer) while dialing.
	if stale {
		t.Close()
	}
}

// reconnect is the reconnection timer callback.
func (m *Manager) reconnect() {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	m.timer = nil
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return
	}

	m.connect()
}

func (m *Manager) handleOpen(id uint64) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	if id != m.attempt {
		m.mu.Unlock()
		return
	}
	if m.closed {
		t := m.transport
		m.mu.Unlock()
		m.logger.Debug("socket opened after close, discarding")
		if t != nil {
			t.Close()
		}
		return
	}
	ev, changed := m.setStatusLocked(StatusConnected)
	m.mu.Unlock()

	m.logger.Info("socket connected", "url", m.cfg.URL)

	if changed {
		m.notify(ev)
	}
}

func (m *Manager) handleMessage(id uint64, data []byte) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	if !m.isCurrent(id) {
		return
	}

	m.framesReceived.Add(1)

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg == nil {
		m.parseErrors.Add(1)
		m.logger.Error("failed to parse message",
			"error", err,
			"data", truncate(data, 256),
		)
		return
	}

	m.mu.Lock()
	m.last = msg
	ev := Event{Type: EventMessage, Status: m.status, Message: msg}
	m.mu.Unlock()

	m.logger.Debug("received message", "kind", msg.Kind())
	m.notify(ev)
}

// handleError funnels transport errors into the close path.
func (m *Manager) handleError(id uint64, err error) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.RLock()
	current := id == m.attempt
	t := m.transport
	m.mu.RUnlock()

	if !current {
		return
	}

	m.logger.Warn("socket error", "url", m.cfg.URL, "error", err)

	if t != nil {
		t.Close()
	}
}

func (m *Manager) handleClose(id uint64, err error) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	if id != m.attempt {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	ev, changed := m.setStatusLocked(StatusDisconnected)

	scheduled := false
	if !m.closed && m.timer == nil {
		m.timer = m.clock.AfterFunc(m.cfg.ReconnectDelay, m.reconnect)
		scheduled = true
	}
	m.mu.Unlock()

	if scheduled {
		m.logger.Info("socket disconnected",
			"error", err,
			"reconnect_in", m.cfg.ReconnectDelay,
		)
	} else {
		m.logger.Info("socket disconnected", "error", err)
	}

	if changed {
		m.notify(ev)
	}
}

func (m *Manager) isCurrent(id uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return id == m.attempt
}

// setStatusLocked updates the status. Caller holds mu.
func (m *Manager) setStatusLocked(s Status) (Event, bool) {
	if m.status == s {
		return Event{}, false
	}
	m.status = s
	return Event{Type: EventStatus, Status: s, Message: m.last}, true
}

// notify calls every observer with ev. Caller holds dispatchMu.
func (m *Manager) notify(ev Event) {
	m.obsMu.RLock()
	observers := m.observers
	m.obsMu.RUnlock()

	for _, e := range observers {
		e.fn(ev)
	}
}

// attemptHandler binds transport callbacks to one connection attempt, so
// events from superseded transports are ignored.
type attemptHandler struct {
	m  *Manager
	id uint64
}

func (h *attemptHandler) OnOpen()               { h.m.handleOpen(h.id) }
func (h *attemptHandler) OnMessage(data []byte) { h.m.handleMessage(h.id, data) }
func (h *attemptHandler) OnError(err error)     { h.m.handleError(h.id, err) }
func (h *attemptHandler) OnClose(err error)     { h.m.handleClose(h.id, err) }

// encode marshals msg, converting a panicking json.Marshaler into an error.
func encode(msg Message) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encode message: %v", r)
		}
	}()
	return json.Marshal(msg)
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
