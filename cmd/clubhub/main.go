// clubhub runs the club hub: the shared socket, the admin dashboard and club
// console view-models, the backend keep-alive and the event store HTTP API.
//
// Usage: go run ./cmd/clubhub --config configs/clubhub.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/clubhub/internal/api"
	"github.com/rickgao/clubhub/internal/bus"
	"github.com/rickgao/clubhub/internal/club"
	"github.com/rickgao/clubhub/internal/config"
	"github.com/rickgao/clubhub/internal/connection"
	"github.com/rickgao/clubhub/internal/dashboard"
	"github.com/rickgao/clubhub/internal/database"
	"github.com/rickgao/clubhub/internal/eventstore"
	"github.com/rickgao/clubhub/internal/keepalive"
	"github.com/rickgao/clubhub/internal/router"
	"github.com/rickgao/clubhub/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/clubhub.example.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	importPath := flag.String("import", "", "import rolled events from an events JSON file into the postgres store")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.Logging.Level)
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting clubhub", append(version.Attrs(), "config", *configPath)...)
	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"club", cfg.Instance.Club,
		"socket_url", cfg.Socket.URL,
		"backend_url", cfg.Backend.URL,
		"store", cfg.Store.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, *importPath, logger); err != nil {
		logger.Error("clubhub failed", "error", err)
		os.Exit(1)
	}

	logger.Info("clubhub stopped")
}

func run(ctx context.Context, cfg *config.Config, importPath string, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, importPath, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	apiClient := api.NewClient(cfg.Backend.URL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Backend.Timeout),
		api.WithRetries(cfg.Backend.Retries(), time.Second),
	)

	// Views register before the manager exists so no notification is missed.
	rtr := router.New(logger)
	rtr.HandleStatus(func(s connection.Status) {
		logger.Info("socket status", "status", s)
	})
	rtr.HandleUnknown(func(msg connection.Message) {
		logger.Debug("unhandled message", "kind", msg.Kind())
	})

	conn := newLazyConn()

	dash := dashboard.New(conn, logger)
	dash.Register(rtr)
	console := club.New(cfg.Instance.Club, conn, apiClient, logger)
	console.Register(rtr)
	if fs, ok := store.(*eventstore.FileStore); ok {
		seedMembers(fs, console, logger)
	}

	mgr := connection.New(connection.ManagerConfig{
		URL:            cfg.Socket.URL,
		ReconnectDelay: cfg.Socket.ReconnectDelay,
		Transport: connection.TransportConfig{
			HandshakeTimeout: cfg.Socket.HandshakeTimeout,
			PingInterval:     cfg.Socket.PingInterval,
			PingTimeout:      cfg.Socket.PingTimeout,
			WriteTimeout:     cfg.Socket.WriteTimeout,
		},
	},
		connection.WithLogger(logger),
		connection.WithObserver(conn.gate(rtr.Observe)),
	)
	conn.set(mgr)
	defer mgr.Close()

	b := bus.New(256, logger)
	defer b.Close()
	detach := bus.Bridge(mgr, b)
	defer detach()

	pinger := keepalive.New(keepalive.Config{
		Interval: cfg.Keepalive.Interval,
		Timeout:  cfg.Keepalive.Timeout,
	}, apiClient, cfg.Backend.URL, keepalive.WithLogger(logger))

	app := &app{
		mgr:     mgr,
		router:  rtr,
		dash:    dash,
		console: console,
		pinger:  pinger,
		logger:  logger,
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.handler(eventstore.Handler(store, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Keepalive.IsEnabled() {
		if err := pinger.Start(gctx); err != nil {
			return fmt.Errorf("start keep-alive: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			return pinger.Stop(stopCtx)
		})
	}

	activity := b.Subscribe(bus.TopicStatus, bus.TopicMessage)
	g.Go(func() error {
		logActivity(gctx, activity, logger)
		b.Unsubscribe(activity)
		return nil
	})

	logger.Info("clubhub running",
		"instance_id", cfg.Instance.ID,
		"status_url", fmt.Sprintf("http://localhost:%d/status", cfg.Server.Port),
	)

	err = g.Wait()

	logger.Info("shutting down...")
	return err
}

// openStore opens the configured event store. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, importPath string, logger *slog.Logger) (eventstore.Store, func(), error) {
	if cfg.Store.Driver != config.StorePostgres {
		if importPath != "" {
			logger.Warn("ignoring -import for the file store", "path", importPath)
		}
		logger.Info("using file event store", "path", cfg.Store.Path)
		return eventstore.NewFileStore(cfg.Store.Path), func() {}, nil
	}

	db := cfg.Store.Postgres
	if db.URL != "" {
		logger.Info("connecting to database", "source", "url")
	} else {
		logger.Info("connecting to database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)
	}

	pool, err := database.Connect(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	store := eventstore.NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("database connected")

	if importPath != "" {
		doc, err := eventstore.NewFileStore(importPath).Load()
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("read import file: %w", err)
		}
		if _, err := store.Import(ctx, doc.RolledEvents); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	return store, pool.Close, nil
}

// seedMembers loads the club monitor's member list from the events file.
func seedMembers(fs *eventstore.FileStore, console *club.Console, logger *slog.Logger) {
	doc, err := fs.Load()
	if err != nil {
		logger.Warn("failed to load club members", "path", fs.Path(), "error", err)
		return
	}
	console.SetMembers(doc.ClubUsers)
	logger.Debug("club members loaded", "total", len(doc.ClubUsers), "online", doc.OnlineCount())
}

// logActivity logs bus traffic until ctx is done.
func logActivity(ctx context.Context, sub bus.Subscription, logger *slog.Logger) {
	logger = logger.With("component", "activity")
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub:
			if !ok {
				return
			}
			switch v := v.(type) {
			case bus.StatusChange:
				logger.Debug("status", "status", v.Status)
			case connection.Message:
				logger.Debug("message", "kind", v.Kind())
			}
		}
	}
}

// lazyConn lets the views be built before the manager they send through.
// Until the manager is set it reports StatusConnecting and drops sends.
type lazyConn struct {
	mgr   atomic.Pointer[connection.Manager]
	ready chan struct{}
}

func newLazyConn() *lazyConn {
	return &lazyConn{ready: make(chan struct{})}
}

// set stores the manager and releases gated notifications. Call once.
func (c *lazyConn) set(m *connection.Manager) {
	c.mgr.Store(m)
	close(c.ready)
}

// gate wraps obs so notifications wait until the manager is set. A socket
// that opens while connection.New is still returning is then seen with a
// usable conn.
func (c *lazyConn) gate(obs connection.Observer) connection.Observer {
	return func(ev connection.Event) {
		<-c.ready
		obs(ev)
	}
}

func (c *lazyConn) Status() connection.Status {
	if m := c.mgr.Load(); m != nil {
		return m.Status()
	}
	return connection.StatusConnecting
}

func (c *lazyConn) SendMessage(msg connection.Message) {
	if m := c.mgr.Load(); m != nil {
		m.SendMessage(msg)
	}
}
