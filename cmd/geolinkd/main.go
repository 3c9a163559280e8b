package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/geolink/internal/auth"
	"github.com/rickgao/geolink/internal/config"
	"github.com/rickgao/geolink/internal/connection"
	"github.com/rickgao/geolink/internal/database"
	"github.com/rickgao/geolink/internal/journal"
	"github.com/rickgao/geolink/internal/monitor"
	"github.com/rickgao/geolink/internal/status"
	"github.com/rickgao/geolink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/geolinkd.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting geolinkd",
		"version", version.Version,
		"commit", version.Get().Commit,
		"config", *configPath,
		"url", cfg.Link.URL,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("geolinkd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("geolinkd stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	// Validate has already rejected unknown levels.
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.AgentConfig, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	probeAddr, err := cfg.ProbeTarget()
	if err != nil {
		return fmt.Errorf("probe target: %w", err)
	}
	reach := monitor.NewReachability(monitor.ReachabilityConfig{
		Address:  probeAddr,
		Interval: cfg.Network.ProbeInterval,
		Timeout:  cfg.Network.ProbeTimeout,
	}, nil, logger)

	wsCfg := cfg.Link.WebsocketConfig()
	if cfg.Auth.Enabled() {
		creds, err := auth.LoadCredentials(cfg.Auth.KeyID, cfg.Auth.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		wsCfg.Header = creds.Header
		logger.Info("request signing enabled", "key_id", cfg.Auth.KeyID)
	}

	manager := connection.NewManager(
		cfg.Link.ManagerConfig(),
		connection.NewWebsocketTransport(wsCfg, logger),
		logger,
		connection.WithNetworkCheck(reach.Check),
	)
	defer manager.Close()

	if cfg.Journal.Enabled {
		stop, err := startJournal(ctx, cfg.Journal, manager, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	life := monitor.NewLifecycle(logger)
	lifeSignals := make(chan os.Signal, 1)
	signal.Notify(lifeSignals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(lifeSignals)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reach.Run(gctx) })
	g.Go(func() error { return monitor.Bind(gctx, manager, reach, life) })
	g.Go(func() error {
		return life.Follow(gctx, lifeSignals, map[os.Signal]connection.AppState{
			syscall.SIGUSR1: connection.AppBackground,
			syscall.SIGUSR2: connection.AppActive,
		})
	})

	statusAddr := net.JoinHostPort("", fmt.Sprint(cfg.Status.Port))
	g.Go(func() error {
		return status.NewServer(manager, logger).ListenAndServe(gctx, statusAddr)
	})

	connectCtx, connectCancel := context.WithTimeout(gctx, cfg.Link.HandshakeTimeout)
	if err := manager.Connect(connectCtx); err != nil {
		// The manager keeps retrying on its own schedule.
		logger.Warn("initial connect failed", "error", err)
	}
	connectCancel()

	logger.Info("geolinkd running",
		"status_url", fmt.Sprintf("http://localhost:%d/status", cfg.Status.Port),
		"probe_address", probeAddr,
	)

	err = g.Wait()
	logger.Info("shutting down...")
	manager.Close()
	return err
}

// startJournal wires the inbound journal: Recorder (listener) -> Buffer -> Writer -> Postgres.
// The returned stop function flushes pending entries and closes the pool.
func startJournal(ctx context.Context, cfg config.JournalConfig, manager *connection.Manager, logger *slog.Logger) (func(), error) {
	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("journal database: %w", err)
	}
	if err := journal.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	buf := journal.NewBuffer[journal.Entry](cfg.BatchSize, cfg.BufferSize)
	writer := journal.NewWriter(journal.WriterConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, buf, pool, logger)
	if err := writer.Start(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal writer: %w", err)
	}

	recorder := journal.NewRecorder(buf, manager.SessionID, logger)
	manager.AddListener(recorder)

	return func() {
		manager.RemoveListener(recorder)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := writer.Stop(shutdownCtx); err != nil {
			logger.Warn("journal writer stop", "error", err)
		}
		stats := writer.Stats()
		logger.Info("journal stopped",
			"inserts", stats.Inserts,
			"errors", stats.Errors,
			"abandoned", stats.Abandoned,
			"dropped", recorder.Dropped(),
		)
		pool.Close()
	}, nil
}
