package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Handler receives transport lifecycle events.
//
// For a given transport, OnOpen fires at most once, OnClose fires exactly once
// and is always the last call. OnError is followed by OnClose once the
// transport has been closed.
type Handler interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(err error)
}

// Transport is a single full-duplex, message-framed connection.
type Transport interface {
	// Send writes one text frame.
	Send(data []byte) error

	// Close starts closing the connection. It does not wait for OnClose.
	Close() error
}

// Dialer starts connection attempts.
type Dialer interface {
	// Dial begins connecting to url and returns immediately. The outcome is
	// reported through h from another goroutine; h is never called before
	// Dial returns.
	Dial(url string, h Handler) Transport
}

// NewDialer creates a Dialer backed by gorilla/websocket.
func NewDialer(cfg TransportConfig, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsDialer{cfg: cfg, logger: logger}
}

type wsDialer struct {
	cfg    TransportConfig
	logger *slog.Logger
}

func (d *wsDialer) Dial(url string, h Handler) Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{
		cfg:     d.cfg,
		logger:  d.logger,
		url:     url,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
	}
	go t.run()
	return t
}

// wsTransport implements Transport over one gorilla/websocket connection.
type wsTransport struct {
	cfg     TransportConfig
	logger  *slog.Logger
	url     string
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	lastPingAt time.Time
	closed     bool

	finishOnce sync.Once
}

// run dials, reports the open, then reads until the connection ends.
func (t *wsTransport) run() {
	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(t.ctx, t.url, header)
	if err != nil {
		if !t.isClosed() {
			t.handler.OnError(err)
		}
		t.finish(err)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		t.finish(nil)
		return
	}
	t.conn = conn
	t.lastPingAt = time.Now()
	t.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	t.logger.Debug("websocket connected", "url", t.url)
	t.handler.OnOpen()

	if t.cfg.PingInterval > 0 {
		go t.heartbeatLoop(conn)
	}

	t.readLoop(conn)
}

// readLoop forwards text frames to the handler until the connection ends.
func (t *wsTransport) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case t.isClosed():
				// Closed locally; not an error.
				t.finish(nil)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				t.finish(err)
			default:
				t.handler.OnError(err)
				t.finish(err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			t.logger.Debug("ignoring non-text frame", "type", msgType)
			continue
		}

		t.handler.OnMessage(data)
	}
}

// heartbeatLoop pings the server and reports stale connections.
func (t *wsTransport) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			if t.cfg.PingTimeout <= 0 {
				continue
			}

			t.mu.RLock()
			lastPing := t.lastPingAt
			t.mu.RUnlock()

			if time.Since(lastPing) > t.cfg.PingTimeout {
				t.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", t.cfg.PingTimeout,
				)
				if !t.isClosed() {
					t.handler.OnError(ErrStaleConnection)
				}
				return
			}
		}
	}
}

// Send writes one text frame.
func (t *wsTransport) Send(data []byte) error {
	t.mu.RLock()
	conn := t.conn
	closed := t.closed
	t.mu.RUnlock()

	if conn == nil || closed {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the connection, or aborts the dial if it has not completed.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	t.cancel()

	if conn == nil {
		return nil
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return conn.Close()
}

func (t *wsTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *wsTransport) touch() {
	t.mu.Lock()
	t.lastPingAt = time.Now()
	t.mu.Unlock()
}

// finish reports the close exactly once and releases the connection.
func (t *wsTransport) finish(err error) {
	t.finishOnce.Do(func() {
		t.cancel()

		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()

		if conn != nil {
			conn.Close()
		}

		t.handler.OnClose(err)
	})
}
