package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skaldan/fabriclink/internal/bridge"
	"github.com/skaldan/fabriclink/internal/config"
	"github.com/skaldan/fabriclink/internal/coordinator"
	"github.com/skaldan/fabriclink/internal/fabric"
	"github.com/skaldan/fabriclink/internal/metrics"
	"github.com/skaldan/fabriclink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/bridge.local.yaml", "path to config file")
	flag.Parse()

	// Bootstrap logger until the configured one is built
	logger := newLogger(config.LoggingConfig{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat})
	slog.SetDefault(logger)

	logger.Info("starting fabric bridge",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"fabric_url", cfg.Fabric.URL,
	)

	if err := metrics.Install(cfg.Instance.ID); err != nil {
		logger.Error("failed to install metric sink", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
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

	// Build the shared fabric client and its coordinator
	client := fabric.NewClient(fabric.ClientConfig{
		URL:               cfg.Fabric.URL,
		ClientID:          cfg.Fabric.ClientID,
		ConnectTimeout:    cfg.Fabric.ConnectTimeout,
		WriteTimeout:      cfg.Fabric.WriteTimeout,
		PingInterval:      cfg.Fabric.PingInterval,
		PingTimeout:       cfg.Fabric.PingTimeout,
		ReconnectBaseWait: cfg.Fabric.ReconnectBaseWait,
		ReconnectMaxWait:  cfg.Fabric.ReconnectMaxWait,
		MaxReconnects:     cfg.Fabric.MaxReconnects,
		EventBufferSize:   cfg.Fabric.EventBufferSize,
	}, logger)

	co := coordinator.NewCoordinator(coordinator.Config{Name: cfg.Instance.ID}, client, logger)

	b := bridge.New(cfg.Bridge, co, logger)

	// Start the health server early so startup is observable
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg.Health.Path, co, b),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := b.Start(ctx); err != nil {
		logger.Error("failed to start bridge", "error", err)
		os.Exit(1)
	}

	logger.Info("fabric bridge running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := b.Stop(shutdownCtx); err != nil {
		logger.Warn("bridge stop", "error", err)
	}

	select {
	case <-co.Teardown():
	case <-shutdownCtx.Done():
		logger.Warn("coordinator teardown timed out")
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	healthServer.Shutdown(httpCtx)

	logger.Info("fabric bridge stopped")
}

// newLogger builds a slog logger from the logging config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(path string, co coordinator.Coordinator, b *bridge.Bridge) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		stats := co.Stats()

		health := struct {
			Status string            `json:"status"`
			Fabric coordinator.Stats `json:"fabric"`
		}{
			Fabric: stats,
		}

		state := co.State()
		switch {
		case state == coordinator.StateConnected:
			health.Status = "healthy"
		case state == coordinator.StateIdle && stats.Consumers > 0:
			// Consumers are registered but the connection is gone
			health.Status = "unhealthy"
		default:
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/consumers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"consumers": co.ConsumerIDs(),
			"statuses":  b.UnitStatuses(),
		})
	})

	mux.HandleFunc("/debug/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.Snapshot())
	})

	return mux
}
