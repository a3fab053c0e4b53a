// jacquesd is the local coordinator daemon: it ingests session events over a
// local socket, keeps the live session registry, streams state to UI clients
// over WebSocket, and services their window-management requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacques-sh/jacques/internal/config"
	"github.com/jacques-sh/jacques/internal/daemon"
	"github.com/jacques-sh/jacques/internal/hub"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config file")
	socketPath := flag.String("socket", "", "Override ingress socket path")
	port := flag.Int("port", 0, "Override WebSocket port")
	mockMode := flag.Bool("mock", false, "Feed the registry scripted mock sessions")
	logLevel := flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jacquesd: %v\n", err)
		os.Exit(1)
	}
	if *socketPath != "" {
		cfg.Ingress.SocketPath = *socketPath
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	d := daemon.New(cfg, daemon.Options{Mock: *mockMode})

	// Logging goes to stderr and, at forward_level and above, to connected
	// clients as server_log messages.
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})
	slog.SetDefault(slog.New(hub.NewTeeHandler(base, d.Hub(), parseLevel(cfg.Log.ForwardLevel))))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("[daemon] signal received", "signal", sig.String())
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		slog.Error("[daemon] exit", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
