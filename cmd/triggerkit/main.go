// Package main implements the TriggerKit binary. TriggerKit is a
// rule-based trigger engine: it watches position and clock signals,
// matches them against user-defined memory triggers, and fires
// notification and action pipelines when a trigger's conditions are met.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/triggerkit/config"
	"github.com/c360/triggerkit/engine"
	"github.com/c360/triggerkit/input/location"
	"github.com/c360/triggerkit/metric"
	"github.com/c360/triggerkit/natsclient"
	"github.com/c360/triggerkit/store"
	"github.com/c360/triggerkit/trigger"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "triggerkit"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting TriggerKit",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	natsClient, err := createNATSClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	defer func() { _ = natsClient.Close(ctx) }()

	// NATS being down degrades the engine (signals stay in-process,
	// triggers stay in memory) rather than preventing startup
	connectNATS(ctx, natsClient)

	triggerStore := createTriggerStore(ctx, cfg, natsClient, logger)

	var metricsRegistry *metric.MetricsRegistry
	metricsPort := 0
	if cfg.Metrics.Enabled {
		metricsRegistry = metric.NewMetricsRegistry()
		metricsPort = cfg.Metrics.Port
	}

	// The manual provider is the attachment point for platform position
	// feeds; external integrations push fixes through it
	provider := location.NewManualProvider()

	eng, err := engine.New(engine.Options{
		NATSClient:      natsClient,
		Provider:        provider,
		Store:           triggerStore,
		Components:      cfg.Components,
		MetricsPort:     metricsPort,
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	return runWithSignalHandling(ctx, eng, cliCfg.ShutdownTimeout)
}

// createNATSClient builds the client from config
func createNATSClient(cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	natsURL := "nats://localhost:4222"
	if len(cfg.NATS.URLs) > 0 {
		natsURL = cfg.NATS.URLs[0]
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName(appName + "-" + cfg.GetPlatform()),
	}
	if cfg.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	return natsclient.NewClient(natsURL, opts...)
}

// connectNATS attempts the initial connection without failing startup
func connectNATS(ctx context.Context, natsClient *natsclient.Client) {
	slog.Info("Connecting to NATS", "url", natsClient.URL())
	if err := natsClient.Connect(ctx); err != nil {
		slog.Warn("NATS connection failed, running degraded", "error", err)
		return
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := natsClient.WaitForConnection(connCtx); err != nil {
		slog.Warn("NATS connection not ready, running degraded", "error", err)
	}
}

// createTriggerStore returns the JetStream KV store when persistence is
// enabled and reachable, an in-memory store otherwise
func createTriggerStore(
	ctx context.Context,
	cfg *config.Config,
	natsClient *natsclient.Client,
	logger *slog.Logger,
) trigger.Store {
	if !cfg.NATS.JetStream.Enabled || !natsClient.IsHealthy() {
		slog.Info("Trigger persistence disabled, using in-memory store")
		return store.NewMemoryStore()
	}

	bucket := cfg.NATS.JetStream.TriggerBucket
	if bucket == "" {
		bucket = "triggerkit_triggers"
	}

	kv, err := store.NewKVStore(ctx, natsClient, bucket, logger)
	if err != nil {
		slog.Warn("KV store unavailable, falling back to in-memory store",
			"bucket", bucket, "error", err)
		return store.NewMemoryStore()
	}

	slog.Info("Trigger persistence enabled", "bucket", bucket)
	return kv
}

// runWithSignalHandling starts the engine and blocks until a shutdown
// signal arrives
func runWithSignalHandling(ctx context.Context, eng *engine.Engine, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := eng.Start(signalCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	slog.Info("TriggerKit started", "triggers", eng.Triggers().Count())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := eng.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("TriggerKit shutdown complete")
	return nil
}

// loadConfig loads from the given path, or built-in defaults when no
// path is set
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.NewLoader().LoadFile(path)
}
