package router

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/clubhub/internal/connection"
)

// Source is the part of the Connection Manager the router attaches to.
type Source interface {
	Subscribe(fn connection.Observer) (unsubscribe func())
}

// Router dispatches Connection Manager notifications by message kind.
//
// Handlers run synchronously on the manager's notification path, in
// registration order, so delivery order is preserved. They must not block.
type Router struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]MessageHandler
	status   []StatusHandler
	fallback MessageHandler

	unsubscribe func()

	// Stats
	received      atomic.Int64
	routed        atomic.Int64
	unknown       atomic.Int64
	statusChanges atomic.Int64
}

// New creates a Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:   logger.With("component", "router"),
		handlers: make(map[string][]MessageHandler),
	}
}

// Handle registers fn for messages of the given kind.
func (r *Router) Handle(kind string, fn MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = append(r.handlers[kind], fn)
}

// HandleStatus registers fn for status changes.
func (r *Router) HandleStatus(fn StatusHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, fn)
}

// HandleUnknown registers fn for messages no kind handler claims.
func (r *Router) HandleUnknown(fn MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fn
}

// Attach subscribes the router to src. Calling Attach again moves the router
// to the new source.
func (r *Router) Attach(src Source) {
	unsub := src.Subscribe(r.Observe)

	r.mu.Lock()
	prev := r.unsubscribe
	r.unsubscribe = unsub
	r.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Detach unsubscribes the router from its source.
func (r *Router) Detach() {
	r.mu.Lock()
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Observe is a connection.Observer.
func (r *Router) Observe(ev connection.Event) {
	switch ev.Type {
	case connection.EventStatus:
		r.routeStatus(ev.Status)
	case connection.EventMessage:
		r.route(ev.Message)
	}
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		MessagesReceived: r.received.Load(),
		MessagesRouted:   r.routed.Load(),
		UnknownMessages:  r.unknown.Load(),
		StatusChanges:    r.statusChanges.Load(),
	}
}

func (r *Router) routeStatus(s connection.Status) {
	r.statusChanges.Add(1)

	r.mu.RLock()
	handlers := r.status
	r.mu.RUnlock()

	for _, fn := range handlers {
		fn(s)
	}
}

func (r *Router) route(msg connection.Message) {
	r.received.Add(1)

	kind := msg.Kind()

	r.mu.RLock()
	handlers := r.handlers[kind]
	fallback := r.fallback
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.unknown.Add(1)
		if kind == "" {
			r.logger.Debug("message has no kind")
		} else {
			r.logger.Debug("skipping message kind", "kind", kind)
		}
		if fallback != nil {
			fallback(msg)
		}
		return
	}

	for _, fn := range handlers {
		fn(msg)
	}
	r.routed.Add(1)
}
