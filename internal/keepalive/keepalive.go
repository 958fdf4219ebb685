package keepalive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrPingInFlight is returned by PingNow while another ping is running.
var ErrPingInFlight = errors.New("ping already in flight")

// Checker checks backend health.
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc is a function adapter for Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// State is the result of the most recent ping.
type State int

const (
	StateIdle State = iota
	StatePinging
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePinging:
		return "pinging"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the pinger.
type Status struct {
	State       State
	URL         string
	Pings       int64     // Completed pings
	Failures    int64     // Completed pings that failed
	LastPingAt  time.Time // Start of the most recent ping
	LastSuccess time.Time
	LastError   string
}

// Config holds pinger configuration.
type Config struct {
	Interval time.Duration // Ping interval (default: 12m)
	Timeout  time.Duration // Per-ping timeout (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 12 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Option configures a Pinger.
type Option func(*Pinger)

// WithClock sets the clock driving the interval.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pinger) {
		p.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pinger) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithOnChange registers a callback run after every state change.
func WithOnChange(fn func(Status)) Option {
	return func(p *Pinger) {
		p.onChange = fn
	}
}

// Pinger periodically checks backend health.
type Pinger struct {
	cfg      Config
	checker  Checker
	url      string
	clock    clockwork.Clock
	logger   *slog.Logger
	onChange func(Status)

	inFlight atomic.Bool

	mu     sync.RWMutex
	status Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Pinger for the backend at url.
func New(cfg Config, checker Checker, url string, opts ...Option) *Pinger {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	p := &Pinger{
		cfg:     cfg,
		checker: checker,
		url:     url,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		status:  Status{State: StateIdle, URL: url},
	}

	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "keepalive")

	return p
}

// Start begins the ping loop. The first ping runs immediately.
func (p *Pinger) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("keep-alive pinger started",
		"url", p.url,
		"interval", p.cfg.Interval,
	)

	return nil
}

// Stop gracefully shuts down the pinger.
func (p *Pinger) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("keep-alive pinger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current status.
func (p *Pinger) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// PingNow pings immediately and returns the result. It returns
// ErrPingInFlight without pinging if a ping is already running.
func (p *Pinger) PingNow(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrPingInFlight
	}
	defer p.inFlight.Store(false)

	return p.ping(ctx)
}

// run is the main ping loop.
func (p *Pinger) run() {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.Chan():
			p.tick()
		}
	}
}

// tick runs a scheduled ping unless a manual one is in flight.
func (p *Pinger) tick() {
	if err := p.PingNow(p.ctx); errors.Is(err, ErrPingInFlight) {
		p.logger.Debug("skipping scheduled ping, one is in flight")
	}
}

func (p *Pinger) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	p.update(func(s *Status) {
		s.State = StatePinging
		s.LastPingAt = p.clock.Now()
	})

	start := p.clock.Now()
	err := p.checker.Health(ctx)

	if err != nil {
		p.logger.Warn("backend ping failed", "url", p.url, "error", err)
		p.update(func(s *Status) {
			s.State = StateError
			s.Pings++
			s.Failures++
			s.LastError = err.Error()
		})
		return err
	}

	p.logger.Debug("backend ping ok", "url", p.url, "duration", p.clock.Since(start))
	p.update(func(s *Status) {
		s.State = StateSuccess
		s.Pings++
		s.LastSuccess = p.clock.Now()
		s.LastError = ""
	})
	return nil
}

func (p *Pinger) update(fn func(*Status)) {
	p.mu.Lock()
	fn(&p.status)
	s := p.status
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(s)
	}
}
