// sockettest connects to the club socket and prints every status change and
// message. Each line typed on stdin is parsed as a JSON object and sent.
//
// Usage: go run ./cmd/sockettest --config configs/clubhub.example.yaml
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/clubhub/internal/bus"
	"github.com/rickgao/clubhub/internal/config"
	"github.com/rickgao/clubhub/internal/connection"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	url := flag.String("url", "", "socket URL, overrides config")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *url != "" {
		cfg.Socket.URL = *url
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	b := bus.New(64, logger)
	defer b.Close()
	sub := b.Subscribe(bus.TopicStatus, bus.TopicMessage)

	mgr := connect(cfg, b, connection.WithLogger(logger))
	defer mgr.Close()

	fmt.Printf("socket tester: %s (status %s)\n", mgr.URL(), mgr.Status())
	fmt.Println("type a JSON object and press enter to send, Ctrl+C to quit")

	go printEvents(ctx, sub, os.Stdout, *verbose)
	go readInput(ctx, os.Stdin, os.Stdout, mgr)

	<-ctx.Done()

	stats := mgr.Stats()
	fmt.Printf("\nreceived=%d sent=%d dropped=%d parse_errors=%d attempts=%d\n",
		stats.FramesReceived, stats.MessagesSent, stats.SendsDropped, stats.ParseErrors, stats.ConnectAttempts)

	// Let the close frame go out before exiting.
	mgr.Close()
	time.Sleep(100 * time.Millisecond)
}

// connect starts the manager with b observing it from the first attempt.
// The initial connecting status is published too, since the manager starts
// in it without a change.
func connect(cfg *config.Config, b bus.MessageBus, opts ...connection.Option) *connection.Manager {
	b.Publish(bus.TopicStatus, bus.StatusChange{Status: connection.StatusConnecting})

	opts = append(opts, connection.WithObserver(bus.Forward(b)))
	return connection.New(connection.ManagerConfig{
		URL:            cfg.Socket.URL,
		ReconnectDelay: cfg.Socket.ReconnectDelay,
		Transport: connection.TransportConfig{
			HandshakeTimeout: cfg.Socket.HandshakeTimeout,
			PingInterval:     cfg.Socket.PingInterval,
			PingTimeout:      cfg.Socket.PingTimeout,
			WriteTimeout:     cfg.Socket.WriteTimeout,
		},
	}, opts...)
}

var errInvalidJSON = errors.New("Invalid JSON")

// sender is the part of the Connection Manager the input loop uses.
type sender interface {
	Status() connection.Status
	SendMessage(msg connection.Message)
}

// readInput sends each stdin line as a message until in is exhausted.
func readInput(ctx context.Context, in io.Reader, out io.Writer, s sender) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := sendLine(s, scanner.Text()); err != nil {
			fmt.Fprintln(out, err)
		}
	}
}

// sendLine parses line as a JSON object and sends it. Blank lines are
// ignored.
func sendLine(s sender, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var msg connection.Message
	if err := json.Unmarshal([]byte(line), &msg); err != nil || msg == nil {
		return errInvalidJSON
	}

	if status := s.Status(); status != connection.StatusConnected {
		return fmt.Errorf("not sent: socket is %s", status)
	}

	s.SendMessage(msg)
	return nil
}

// printEvents prints bus traffic until ctx is done.
func printEvents(ctx context.Context, sub bus.Subscription, out io.Writer, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub:
			if !ok {
				return
			}
			fmt.Fprintln(out, formatEvent(v, verbose))
		}
	}
}

func formatEvent(v any, verbose bool) string {
	switch v := v.(type) {
	case bus.StatusChange:
		return fmt.Sprintf("[STATUS] %s", v.Status)
	case connection.Message:
		if verbose {
			data, _ := json.MarshalIndent(v, "", "  ")
			return fmt.Sprintf("[MESSAGE] %s", data)
		}
		data, _ := json.Marshal(v)
		return fmt.Sprintf("[MESSAGE] kind=%s %s", v.Kind(), data)
	default:
		return fmt.Sprintf("[UNKNOWN] %v", v)
	}
}
