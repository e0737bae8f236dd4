// Command sense-console is an interactive console for command managers.
//
// By default it starts the demo engine in process and binds a proxy to it.
// With -connect it binds to a remote engine instead; with -serve it also
// exposes the local engine to remote consoles.
//
// Usage:
//
//	sense-console [flags]
//
// Examples:
//
//	# Local demo engine, protocol events written to a file
//	sense-console -protocol-log console.slog
//
//	# Serve the demo engine and drive it from a second console
//	sense-console -serve :7400
//	sense-console -connect localhost:7400
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/motionsense/sense-go/cmd/sense-console/interactive"
	"github.com/motionsense/sense-go/cmd/sense-console/sim"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/engine"
	"github.com/motionsense/sense-go/pkg/frame"
	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/remote"
)

// Config holds the console configuration.
type Config struct {
	Connect       string
	Serve         string
	ProtocolLog   string
	LogLevel      string
	FrameInterval time.Duration
	Timeout       time.Duration
}

var config Config

func init() {
	flag.StringVar(&config.Connect, "connect", "", "Connect to a remote engine at host:port instead of starting one")
	flag.StringVar(&config.Serve, "serve", "", "Serve the local engine on this address")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write protocol events to this file")
	flag.StringVar(&config.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.DurationVar(&config.FrameInterval, "frame-interval", 100*time.Millisecond, "Frame production interval of the local engine")
	flag.DurationVar(&config.Timeout, "timeout", 500*time.Millisecond, "Default wait for immediate calls")
}

func main() {
	flag.Parse()
	if config.Connect != "" && config.Serve != "" {
		fmt.Fprintln(os.Stderr, "Error: -connect and -serve are exclusive")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, cancel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// logOutput lets the slog handler follow the console once it exists.
type logOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (o *logOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *logOutput) set(w io.Writer) {
	o.mu.Lock()
	o.w = w
	o.mu.Unlock()
}

func run(ctx context.Context, cancel context.CancelFunc) error {
	out := &logOutput{w: os.Stderr}
	logger := setupLogging(config.LogLevel, out)

	// The engine side only writes to the file; the console keeps the
	// proxy's call events in memory for the log command.
	events := log.NewMemoryLogger(1000)
	var fileLog log.Logger
	if config.ProtocolLog != "" {
		fl, err := log.NewFileLogger(config.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to open protocol log: %w", err)
		}
		defer fl.Close()
		fileLog = fl
	}
	protoLog := log.NewMultiLogger(events, fileLog)

	var (
		target interactive.Target
		snap   *frame.Snapshot
	)
	if config.Connect != "" {
		rcfg := remote.DefaultConfig()
		rcfg.Logger = logger
		rcfg.ProtocolLogger = protoLog
		client, err := remote.Dial(ctx, "tcp", config.Connect, rcfg)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer client.Close()
		client.OnChange(func(name string, removed bool) {
			logger.Info("registry changed", "command", name, "removed", removed)
		})
		go func() {
			select {
			case <-client.Done():
				logger.Warn("remote engine closed the session")
			case <-ctx.Done():
			}
		}()
		target = client
	} else {
		e, err := startEngine(ctx, logger, fileLog)
		if err != nil {
			return err
		}
		defer e.Close()
		target = e
		snap = e.Snapshot()
	}

	pcfg := command.DefaultConfig()
	pcfg.Logger = logger
	pcfg.ProtocolLogger = protoLog
	proxy := command.NewProxy(pcfg)
	defer proxy.Close()

	shell, err := interactive.NewShell(ctx, proxy, target, os.Stdout, interactive.Options{
		Snapshot: snap,
		Events:   events,
		Timeout:  config.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to bind proxy: %w", err)
	}
	console, err := interactive.New(shell)
	if err != nil {
		return err
	}
	out.set(console.Stderr())

	console.Run(ctx, cancel)
	return nil
}

// startEngine builds the demo engine, starts frame production and, with
// -serve, the remote server.
func startEngine(ctx context.Context, logger *slog.Logger, protoLog log.Logger) (*engine.Engine, error) {
	ecfg := engine.DefaultConfig()
	ecfg.Logger = logger
	ecfg.ProtocolLogger = protoLog
	e, device, err := sim.NewEngine(ecfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	prod := sim.NewProducer(device)
	go func() {
		if err := e.Run(ctx, config.FrameInterval, prod.Produce); err != nil && ctx.Err() == nil {
			logger.Error("frame production stopped", "error", err)
		}
	}()

	if config.Serve != "" {
		ln, err := net.Listen("tcp", config.Serve)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("failed to listen: %w", err)
		}
		rcfg := remote.DefaultConfig()
		rcfg.Logger = logger
		rcfg.ProtocolLogger = protoLog
		srv := remote.NewServer(e, rcfg)
		go func() {
			if err := srv.Serve(ctx, ln); err != nil && ctx.Err() == nil {
				logger.Error("server stopped", "error", err)
			}
		}()
		logger.Info("serving engine", "addr", ln.Addr().String(), "engine", e.ID())
	}
	return e, nil
}

func setupLogging(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
