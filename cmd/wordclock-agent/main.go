package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saaga0h/jeeves-wordclock/internal/wordclock"
	"github.com/saaga0h/jeeves-wordclock/pkg/config"
	"github.com/saaga0h/jeeves-wordclock/pkg/health"
	"github.com/saaga0h/jeeves-wordclock/pkg/mqtt"
	"github.com/saaga0h/jeeves-wordclock/pkg/postgres"
	"github.com/saaga0h/jeeves-wordclock/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → env → flags
	cfg := config.NewConfig()
	cfg.ServiceName = "wordclock-agent"
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting J.E.E.V.E.S. Word Clock Agent",
		"version", "1.0",
		"service_name", cfg.ServiceName,
		"display", cfg.DisplayName,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"output_sink", cfg.OutputSink,
		"log_level", cfg.LogLevel)

	layout := wordclock.DefaultLayout()
	if cfg.LayoutFile != "" {
		var err error
		layout, err = wordclock.LoadLayout(cfg.LayoutFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Layout error: %v\n", err)
			os.Exit(1)
		}
		logger.Info("Loaded face layout", "file", cfg.LayoutFile, "pixels", layout.Pixels())
	}
	if layout.Pixels() > cfg.LEDCount {
		fmt.Fprintf(os.Stderr, "Configuration error: layout uses %d pixels but led count is %d\n", layout.Pixels(), cfg.LEDCount)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	mqttClient := mqtt.NewClient(cfg, logger)
	redisClient := redis.NewClient(cfg, logger)

	sink, err := newSink(cfg, mqttClient, logger)
	if err != nil {
		logger.Error("Failed to open output sink", "output_sink", cfg.OutputSink, "error", err)
		os.Exit(1)
	}

	var journal wordclock.Journal
	var pgClient postgres.Client
	if cfg.EnableJournal {
		pgClient, journal = openJournal(ctx, cfg, logger)
	}

	agent := wordclock.NewAgent(mqttClient, redisClient, sink, journal, layout, cfg, logger)

	healthChecker := health.NewChecker(mqttClient, redisClient, agent, logger)
	if pgClient != nil {
		healthChecker.WithPostgres(pgClient)
	}
	httpServer := startHealthServer(cfg.HealthPort, healthChecker, logger)

	agentErr := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil {
			logger.Error("Agent error", "error", err)
			agentErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
		exitCode = 1
	}

	logger.Info("Initiating graceful shutdown")
	cancel()

	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	if pgClient != nil {
		if err := pgClient.Disconnect(); err != nil {
			logger.Error("Error closing Postgres connection", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	logger.Info("Word clock agent shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func newSink(cfg *config.Config, mqttClient mqtt.Client, logger *slog.Logger) (wordclock.Sink, error) {
	switch cfg.OutputSink {
	case "opc":
		return wordclock.NewOPCSink(cfg.OPCServer, uint8(cfg.OPCChannel), logger), nil
	case "spi":
		return wordclock.NewSPISink(cfg.SPIPort, cfg.SPIColorMode, logger)
	default:
		return wordclock.NewMQTTSink(mqttClient, logger), nil
	}
}

// openJournal connects Postgres for the render journal. Failure disables the
// journal; the clock keeps running without it.
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (postgres.Client, wordclock.Journal) {
	pgClient := postgres.NewClient(cfg, logger)
	if err := pgClient.Connect(ctx); err != nil {
		logger.Warn("Render journal disabled, Postgres unavailable", "error", err)
		return nil, nil
	}

	status, err := pgClient.HealthCheck(ctx)
	if err == nil {
		logger.Info("Postgres connected", "database", status.Database, "server_version", status.ServerVersion)
	}

	journal, err := wordclock.NewPostgresJournal(ctx, pgClient, logger)
	if err != nil {
		logger.Warn("Render journal disabled", "error", err)
		pgClient.Disconnect()
		return nil, nil
	}
	return pgClient, journal
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
