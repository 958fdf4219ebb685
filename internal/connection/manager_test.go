package connection

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// mockTransport records sends and closes. It never generates events on its
// own; tests drive the handler directly.
type mockTransport struct {
	h Handler

	mu      sync.Mutex
	sent    [][]byte
	closes  int
	sendErr error
}

func (t *mockTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *mockTransport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

func (t *mockTransport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// mockDialer hands out a new mockTransport per attempt.
type mockDialer struct {
	mu       sync.Mutex
	attempts []*mockTransport
	urls     []string
}

func (d *mockDialer) Dial(url string, h Handler) Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &mockTransport{h: h}
	d.attempts = append(d.attempts, t)
	d.urls = append(d.urls, url)
	return t
}

func (d *mockDialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

func (d *mockDialer) Last() *mockTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[len(d.attempts)-1]
}

func (d *mockDialer) At(i int) *mockTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[i]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is the part of clockwork's fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *mockDialer, fakeClock) {
	t.Helper()

	dialer := &mockDialer{}
	clock := clockwork.NewFakeClock()

	cfg := DefaultManagerConfig()
	cfg.URL = "ws://test.invalid"

	all := append([]Option{
		WithDialer(dialer),
		WithClock(clock),
		WithLogger(discardLogger()),
	}, opts...)

	m := New(cfg, all...)
	t.Cleanup(func() { m.Close() })
	return m, dialer, clock
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// eventRecorder collects observer notifications.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestManager_InitialState(t *testing.T) {
	m, dialer, _ := newTestManager(t)

	if got := m.Status(); got != StatusConnecting {
		t.Errorf("Status() = %v, want %v", got, StatusConnecting)
	}
	if m.LastMessage() != nil {
		t.Errorf("LastMessage() = %v, want nil", m.LastMessage())
	}
	if dialer.Count() != 1 {
		t.Fatalf("dial attempts = %d, want 1", dialer.Count())
	}
	if dialer.urls[0] != "ws://test.invalid" {
		t.Errorf("dialed %q, want %q", dialer.urls[0], "ws://test.invalid")
	}
	if m.Stats().ConnectAttempts != 1 {
		t.Errorf("ConnectAttempts = %d, want 1", m.Stats().ConnectAttempts)
	}
}

func TestManager_DefaultsApplied(t *testing.T) {
	dialer := &mockDialer{}
	m := New(ManagerConfig{}, WithDialer(dialer), WithClock(clockwork.NewFakeClock()), WithLogger(discardLogger()))
	defer m.Close()

	if m.URL() != DefaultURL {
		t.Errorf("URL() = %q, want %q", m.URL(), DefaultURL)
	}
	if m.cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want %v", m.cfg.ReconnectDelay, DefaultReconnectDelay)
	}
}

// End-to-end: open, ping, close, exactly one reconnect after the delay.
func TestManager_Lifecycle(t *testing.T) {
	m, dialer, clock := newTestManager(t)
	tr := dialer.Last()

	tr.h.OnOpen()
	if got := m.Status(); got != StatusConnected {
		t.Fatalf("Status() = %v, want %v", got, StatusConnected)
	}

	tr.h.OnMessage([]byte(`{"kind":"ping"}`))
	if want := (Message{"kind": "ping"}); !reflect.DeepEqual(m.LastMessage(), want) {
		t.Errorf("LastMessage() = %v, want %v", m.LastMessage(), want)
	}

	tr.h.OnClose(nil)
	if got := m.Status(); got != StatusDisconnected {
		t.Fatalf("Status() = %v, want %v", got, StatusDisconnected)
	}

	clock.Advance(DefaultReconnectDelay - time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if dialer.Count() != 1 {
		t.Fatalf("dial attempts before delay = %d, want 1", dialer.Count())
	}

	clock.Advance(time.Millisecond)
	waitFor(t, time.Second, func() bool { return dialer.Count() == 2 })

	time.Sleep(20 * time.Millisecond)
	if dialer.Count() != 2 {
		t.Errorf("dial attempts = %d, want exactly 2", dialer.Count())
	}
	if got := m.Status(); got != StatusConnecting {
		t.Errorf("Status() = %v, want %v", got, StatusConnecting)
	}
}

func TestManager_RepeatedCloseSchedulesOneTimer(t *testing.T) {
	m, dialer, clock := newTestManager(t)
	tr := dialer.Last()

	tr.h.OnOpen()
	tr.h.OnClose(nil)
	tr.h.OnClose(errors.New("again"))
	tr.h.OnClose(nil)

	m.mu.RLock()
	pending := m.timer != nil
	m.mu.RUnlock()
	if !pending {
		t.Fatal("expected a pending reconnection timer")
	}

	clock.Advance(10 * DefaultReconnectDelay)
	waitFor(t, time.Second, func() bool { return dialer.Count() == 2 })

	time.Sleep(20 * time.Millisecond)
	if dialer.Count() != 2 {
		t.Errorf("dial attempts = %d, want 2", dialer.Count())
	}
}

func TestManager_ConnectFailureReconnects(t *testing.T) {
	m, dialer, clock := newTestManager(t)
	tr := dialer.Last()

	// A refused dial reports error then close, without ever opening.
	tr.h.OnError(errors.New("connection refused"))
	if tr.Closes() != 1 {
		t.Errorf("transport closes = %d, want 1", tr.Closes())
	}
	if got := m.Status(); got != StatusConnecting {
		t.Errorf("Status() after error = %v, want %v", got, StatusConnecting)
	}

	tr.h.OnClose(errors.New("connection refused"))
	if got := m.Status(); got != StatusDisconnected {
		t.Errorf("Status() = %v, want %v", got, StatusDisconnected)
	}

	// No retry limit: every failure schedules another attempt.
	for i := 2; i <= 5; i++ {
		clock.Advance(DefaultReconnectDelay)
		waitFor(t, time.Second, func() bool { return dialer.Count() == i })
		dialer.Last().h.OnClose(errors.New("connection refused"))
	}
}

func TestManager_ErrorClosesBeforeStatusChange(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	rec := &eventRecorder{}
	m.Subscribe(rec.observe)

	tr := dialer.Last()
	tr.h.OnOpen()
	tr.h.OnError(errors.New("protocol error"))

	if tr.Closes() != 1 {
		t.Fatalf("transport closes = %d, want 1", tr.Closes())
	}
	if got := m.Status(); got != StatusConnected {
		t.Errorf("Status() before close event = %v, want %v", got, StatusConnected)
	}

	tr.h.OnClose(errors.New("protocol error"))
	if got := m.Status(); got != StatusDisconnected {
		t.Errorf("Status() = %v, want %v", got, StatusDisconnected)
	}

	events := rec.Events()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[1].Status != StatusDisconnected {
		t.Errorf("last event status = %v, want %v", events[1].Status, StatusDisconnected)
	}
}

func TestManager_LastMessageWins(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	tr := dialer.Last()
	tr.h.OnOpen()

	for i := 1; i <= 50; i++ {
		data, _ := json.Marshal(map[string]any{"kind": "tick", "n": i})
		tr.h.OnMessage(data)
	}

	want := Message{"kind": "tick", "n": float64(50)}
	if !reflect.DeepEqual(m.LastMessage(), want) {
		t.Errorf("LastMessage() = %v, want %v", m.LastMessage(), want)
	}
	if m.Stats().FramesReceived != 50 {
		t.Errorf("FramesReceived = %d, want 50", m.Stats().FramesReceived)
	}
}

func TestManager_MalformedFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `not json`},
		{"truncated", `{"kind":`},
		{"array", `[1,2,3]`},
		{"null", `null`},
		{"string", `"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, dialer, _ := newTestManager(t)
			rec := &eventRecorder{}
			tr := dialer.Last()
			tr.h.OnOpen()
			tr.h.OnMessage([]byte(`{"kind":"first"}`))
			m.Subscribe(rec.observe)

			tr.h.OnMessage([]byte(tt.frame))

			if got := m.Status(); got != StatusConnected {
				t.Errorf("Status() = %v, want %v", got, StatusConnected)
			}
			if got := m.LastMessage().Kind(); got != "first" {
				t.Errorf("LastMessage().Kind() = %q, want %q", got, "first")
			}
			if len(rec.Events()) != 0 {
				t.Errorf("observers notified %d times, want 0", len(rec.Events()))
			}
			if tr.Closes() != 0 {
				t.Errorf("transport closed on parse error")
			}
			if m.Stats().ParseErrors != 1 {
				t.Errorf("ParseErrors = %d, want 1", m.Stats().ParseErrors)
			}
		})
	}
}

func TestManager_SendWhileDisconnected(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	tr := dialer.Last()

	// Connecting
	m.SendMessage(Message{"kind": "ping"})

	tr.h.OnOpen()
	tr.h.OnClose(nil)

	// Disconnected
	m.SendMessage(Message{"kind": "ping"})

	if len(tr.Sent()) != 0 {
		t.Errorf("sent %d frames, want 0", len(tr.Sent()))
	}
	if m.Stats().SendsDropped != 2 {
		t.Errorf("SendsDropped = %d, want 2", m.Stats().SendsDropped)
	}
}

func TestManager_SendRoundTrip(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	tr := dialer.Last()
	tr.h.OnOpen()

	msg := Message{
		"kind":      "accept_event",
		"requestId": "7c1d2a4e",
		"eventId":   float64(12),
		"approved":  true,
		"tags":      []any{"music", "outdoor"},
		"venue":     map[string]any{"name": "Hall A", "floor": float64(2)},
		"note":      nil,
	}
	m.SendMessage(msg)

	sent := tr.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}

	var parsed Message
	if err := json.Unmarshal(sent[0], &parsed); err != nil {
		t.Fatalf("unmarshal sent frame: %v", err)
	}
	if !reflect.DeepEqual(parsed, msg) {
		t.Errorf("round trip = %v, want %v", parsed, msg)
	}
	if m.Stats().MessagesSent != 1 {
		t.Errorf("MessagesSent = %d, want 1", m.Stats().MessagesSent)
	}
}

type panickyValue struct{}

func (panickyValue) MarshalJSON() ([]byte, error) {
	panic("boom")
}

func TestManager_SendUnencodable(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	tr := dialer.Last()
	tr.h.OnOpen()

	m.SendMessage(Message{"kind": "bad", "ch": make(chan int)})
	m.SendMessage(Message{"kind": "bad", "v": panickyValue{}})

	if len(tr.Sent()) != 0 {
		t.Errorf("sent %d frames, want 0", len(tr.Sent()))
	}
	if m.Stats().SendsDropped != 2 {
		t.Errorf("SendsDropped = %d, want 2", m.Stats().SendsDropped)
	}
	if got := m.Status(); got != StatusConnected {
		t.Errorf("Status() = %v, want %v", got, StatusConnected)
	}
}

func TestManager_SendErrorIsSwallowed(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	tr := dialer.Last()
	tr.h.OnOpen()
	tr.sendErr = errors.New("broken pipe")

	m.SendMessage(Message{"kind": "ping"})

	if m.Stats().SendsDropped != 1 {
		t.Errorf("SendsDropped = %d, want 1", m.Stats().SendsDropped)
	}
}

func TestManager_TeardownCancelsTimer(t *testing.T) {
	m, dialer, clock := newTestManager(t)
	tr := dialer.Last()

	tr.h.OnOpen()
	tr.h.OnClose(nil)

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !m.Closed() {
		t.Error("Closed() = false, want true")
	}

	clock.Advance(10 * DefaultReconnectDelay)
	time.Sleep(20 * time.Millisecond)

	if dialer.Count() != 1 {
		t.Errorf("dial attempts = %d, want 1", dialer.Count())
	}
}

func TestManager_TeardownWhileConnected(t *testing.T) {
	m, dialer, clock := newTestManager(t)
	tr := dialer.Last()
	tr.h.OnOpen()

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if tr.Closes() != 1 {
		t.Errorf("transport closes = %d, want 1", tr.Closes())
	}

	// The transport reports its close; no reconnection follows.
	tr.h.OnClose(nil)
	if got := m.Status(); got != StatusDisconnected {
		t.Errorf("Status() = %v, want %v", got, StatusDisconnected)
	}

	clock.Advance(10 * DefaultReconnectDelay)
	time.Sleep(20 * time.Millisecond)
	if dialer.Count() != 1 {
		t.Errorf("dial attempts = %d, want 1", dialer.Count())
	}

	// Second close is a no-op.
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if tr.Closes() != 1 {
		t.Errorf("transport closes = %d, want 1", tr.Closes())
	}
}

func TestManager_OpenAfterTeardown(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	tr := dialer.Last()

	m.Close()
	tr.h.OnOpen()

	if got := m.Status(); got == StatusConnected {
		t.Error("Status() = connected after teardown")
	}
	if tr.Closes() < 2 {
		t.Errorf("transport closes = %d, want >= 2", tr.Closes())
	}
}

func TestManager_StaleAttemptIgnored(t *testing.T) {
	m, dialer, clock := newTestManager(t)
	first := dialer.Last()
	first.h.OnOpen()
	first.h.OnClose(nil)

	clock.Advance(DefaultReconnectDelay)
	waitFor(t, time.Second, func() bool { return dialer.Count() == 2 })
	second := dialer.Last()
	second.h.OnOpen()

	first.h.OnMessage([]byte(`{"kind":"stale"}`))
	first.h.OnError(errors.New("late"))
	first.h.OnClose(nil)

	if got := m.Status(); got != StatusConnected {
		t.Errorf("Status() = %v, want %v", got, StatusConnected)
	}
	if m.LastMessage() != nil {
		t.Errorf("LastMessage() = %v, want nil", m.LastMessage())
	}
	if second.Closes() != 0 {
		t.Errorf("current transport closed by stale event")
	}
}

func TestManager_ObserverOrder(t *testing.T) {
	rec := &eventRecorder{}
	m, dialer, _ := newTestManager(t, WithObserver(rec.observe))
	tr := dialer.Last()

	tr.h.OnOpen()
	tr.h.OnMessage([]byte(`{"kind":"a"}`))
	tr.h.OnMessage([]byte(`{"kind":"b"}`))
	tr.h.OnClose(nil)

	events := rec.Events()
	want := []struct {
		typ    EventType
		status Status
		kind   string
	}{
		{EventStatus, StatusConnected, ""},
		{EventMessage, StatusConnected, "a"},
		{EventMessage, StatusConnected, "b"},
		{EventStatus, StatusDisconnected, "b"},
	}

	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		ev := events[i]
		if ev.Type != w.typ || ev.Status != w.status || ev.Message.Kind() != w.kind {
			t.Errorf("event %d = {%v %v %q}, want {%v %v %q}",
				i, ev.Type, ev.Status, ev.Message.Kind(), w.typ, w.status, w.kind)
		}
	}
	_ = m
}

func TestManager_Unsubscribe(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	rec := &eventRecorder{}
	unsubscribe := m.Subscribe(rec.observe)

	tr := dialer.Last()
	tr.h.OnOpen()
	unsubscribe()
	unsubscribe()
	tr.h.OnMessage([]byte(`{"kind":"a"}`))

	if len(rec.Events()) != 1 {
		t.Errorf("events = %d, want 1", len(rec.Events()))
	}
}

func TestManager_ObserverReentrancy(t *testing.T) {
	m, dialer, clock := newTestManager(t)

	// Observers may query, send and tear down from inside a notification.
	m.Subscribe(func(ev Event) {
		_ = m.Status()
		_ = m.LastMessage()
		if ev.Type == EventStatus && ev.Status == StatusConnected {
			m.SendMessage(Message{"kind": "get_snapshot"})
		}
		if ev.Message.Kind() == "shutdown" {
			m.Close()
		}
	})

	tr := dialer.Last()
	tr.h.OnOpen()
	if len(tr.Sent()) != 1 {
		t.Fatalf("sent %d frames, want 1", len(tr.Sent()))
	}

	tr.h.OnMessage([]byte(`{"kind":"shutdown"}`))
	if !m.Closed() {
		t.Fatal("expected manager to be closed")
	}

	tr.h.OnClose(nil)
	clock.Advance(10 * DefaultReconnectDelay)
	time.Sleep(20 * time.Millisecond)
	if dialer.Count() != 1 {
		t.Errorf("dial attempts = %d, want 1", dialer.Count())
	}
}

// Random valid event sequences must always end in the status the state
// machine predicts, with at most one pending timer.
func TestManager_StatusDeterminism(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for run := 0; run < 25; run++ {
		m, dialer, clock := newTestManager(t)
		want := StatusConnecting

		for step := 0; step < 6; step++ {
			tr := dialer.Last()

			if rng.IntN(4) != 0 {
				tr.h.OnOpen()
				want = StatusConnected

				for i := rng.IntN(3); i > 0; i-- {
					tr.h.OnMessage([]byte(`{"kind":"x"}`))
				}
				if rng.IntN(2) == 0 {
					tr.h.OnMessage([]byte(`garbage`))
				}
			}

			if got := m.Status(); got != want {
				t.Fatalf("run %d step %d: Status() = %v, want %v", run, step, got, want)
			}

			if rng.IntN(2) == 0 {
				tr.h.OnError(errors.New("boom"))
			}
			for i := 1 + rng.IntN(2); i > 0; i-- {
				tr.h.OnClose(nil)
			}
			want = StatusDisconnected

			if got := m.Status(); got != want {
				t.Fatalf("run %d step %d: Status() = %v, want %v", run, step, got, want)
			}

			attempts := dialer.Count()
			clock.Advance(DefaultReconnectDelay)
			waitFor(t, time.Second, func() bool { return dialer.Count() == attempts+1 })
			want = StatusConnecting
		}

		if got, n := m.Status(), dialer.Count(); got != StatusConnecting || n != 7 {
			t.Fatalf("run %d: Status() = %v attempts = %d, want connecting/7", run, got, n)
		}
		m.Close()
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusDisconnected, "disconnected"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestMessage_Kind(t *testing.T) {
	if got := (Message{"kind": "snapshot"}).Kind(); got != "snapshot" {
		t.Errorf("Kind() = %q, want %q", got, "snapshot")
	}
	if got := (Message{"kind": 3}).Kind(); got != "" {
		t.Errorf("Kind() = %q, want empty", got)
	}
	if got := Message(nil).Kind(); got != "" {
		t.Errorf("Kind() = %q, want empty", got)
	}
}
