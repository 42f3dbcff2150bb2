// Command server starts the BlockPad relay.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blockpad/relay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := server.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	metrics := server.NewMetrics(promRegistry)

	registry := server.NewRegistry(logger)
	hub := server.NewHub(logger, metrics)
	router := server.NewRouter(registry, hub, logger, metrics)
	hub.Bind(router)

	policy := server.NewOriginPolicy(cfg.AllowedOrigins, logger)
	wsHandler := server.NewWebSocketHandler(hub, cfg, policy, logger)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	mux := server.SetupRoutes(wsHandler, policy, metricsHandler, logger)
	httpServer := server.CreateServer(cfg.Addr, mux)

	go hub.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	_ = server.ShutdownServer(httpServer, shutdownTimeout, logger)
	_ = hub.Shutdown(shutdownTimeout)
}
