// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SpecterX-AHM/WebAuthn-Authenticator/internal/config"
	"github.com/SpecterX-AHM/WebAuthn-Authenticator/pkg/webauthn"
	webauthnhttp "github.com/SpecterX-AHM/WebAuthn-Authenticator/pkg/webauthn/http"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/webauthn-authenticator/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("webauthn-authenticator server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("WEBAUTHN_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("Starting server",
		"config", *configPath,
		"version", version,
		"rp_id", cfg.WebAuthn.RPID,
		"port", cfg.Server.Port)

	registry := prometheus.NewRegistry()
	metrics := webauthn.NewMetrics(registry)

	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:  &cfg.WebAuthn,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("Failed to create ceremony service", slog.Any("error", err))
		os.Exit(1)
	}

	handler := webauthnhttp.NewHandler(svc).WithLogger(logger)

	router := chi.NewRouter()
	router.Use(webauthnhttp.CorrelationMiddleware())
	router.Route("/v1", func(r chi.Router) {
		webauthnhttp.MountChi(r, handler)
	})
	if cfg.Metrics.Enabled {
		router.Method("GET", cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx := setupSignalHandler()

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	logger.Info("Server started successfully", "addr", server.Addr)

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Error("Server error", slog.Any("error", err))
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownTimeout); err != nil {
		logger.Error("Error during server shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Server stopped successfully")
}

// loadConfig loads the file at path, falling back to defaults when the
// file does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Warn("Config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		cancel()
	}()

	return ctx
}
