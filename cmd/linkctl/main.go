// linkctl opens a link connection and drives it from an interactive console.
// Usage: go run ./cmd/linkctl --config configs/geolinkd.local.yaml
//
// Inbound envelopes are printed as they arrive. Type "help" for commands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/geolink/internal/auth"
	"github.com/rickgao/geolink/internal/config"
	"github.com/rickgao/geolink/internal/connection"
)

func main() {
	configPath := flag.String("config", "configs/geolinkd.example.yaml", "path to config file")
	url := flag.String("url", "", "override link.url")
	verbose := flag.Bool("verbose", false, "print full envelope JSON and debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.Link.URL = *url
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wsCfg := cfg.Link.WebsocketConfig()
	if cfg.Auth.Enabled() {
		creds, err := auth.LoadCredentials(cfg.Auth.KeyID, cfg.Auth.PrivateKeyPath)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
		wsCfg.Header = creds.Header
		logger.Info("using API credentials", "key_id", creds.KeyID)
	}

	m := connection.NewManager(cfg.Link.ManagerConfig(), connection.NewWebsocketTransport(wsCfg, logger), logger)
	defer m.Close()

	m.OnMessage(func(env connection.Envelope) {
		fmt.Println(formatEnvelope(env, *verbose))
	})

	if err := m.Connect(ctx); err != nil {
		logger.Warn("initial connect failed", "error", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	console := &console{link: m, out: os.Stdout}
	fmt.Println(`linkctl ready, type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if console.execute(ctx, line) {
				return
			}
		}
	}
}
