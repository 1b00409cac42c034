// wstap tails inboxray event streams (console logs, check progress,
// proxy status) over pooled WebSocket connections.
// Usage: go run ./cmd/wstap --config configs/wstap.example.yaml
//
// The auth token can be supplied via the config file, typically through
// an environment variable reference such as ${WSTAP_TOKEN}.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/inboxray/wspool/internal/config"
	"github.com/inboxray/wspool/internal/console"
	"github.com/inboxray/wspool/internal/pool"
	"github.com/inboxray/wspool/internal/transport"
	"github.com/inboxray/wspool/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/wstap.example.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration first; its log level configures the logger.
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting wstap",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"endpoints", len(cfg.Endpoints),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	tcfg := transport.Config{
		HandshakeTimeout: cfg.Pool.HandshakeTimeout,
		WriteTimeout:     cfg.Pool.WriteTimeout,
		PingInterval:     cfg.Pool.PingInterval,
		PingTimeout:      cfg.Pool.PingTimeout,
		BufferSize:       cfg.Pool.BufferSize,
	}
	if cfg.Auth.Token != "" {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+cfg.Auth.Token)
		tcfg.Header = header
	}

	p := pool.New(pool.Config{
		MaxRetries:         cfg.Pool.MaxRetries,
		ReconnectBaseDelay: cfg.Pool.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Pool.ReconnectMaxDelay,
	}, transport.NewDialer(tcfg, logger), logger)
	defer p.Dispose()

	g, gctx := errgroup.WithContext(ctx)
	var routers []*console.Router

	for _, ep := range cfg.Endpoints {
		id, err := p.Connect(ep.Name, ep.URL)
		if err != nil {
			logger.Error("failed to connect", "endpoint", ep.Name, "error", err)
			os.Exit(1)
		}

		name := ep.Name
		p.On(id, pool.EventOpen, func(pool.Event) {
			logger.Info("stream open", "endpoint", name)
		})
		p.On(id, pool.EventError, func(ev pool.Event) {
			logger.Warn("stream error", "endpoint", name, "error", ev.Err)
		})

		r := console.NewRouter(p, id, cfg.Console.BufferSize, logger)
		r.Start()
		routers = append(routers, r)

		g.Go(console.NewTail(r.Entries(), os.Stdout).Run)
	}

	g.Go(func() error {
		<-gctx.Done()
		// Closing the routers closes their buffers; tails drain what
		// is left and return.
		for _, r := range routers {
			r.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("tail failed", "error", err)
		os.Exit(1)
	}

	logger.Info("wstap stopped")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
