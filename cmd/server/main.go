package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/tsuyaku/external/audio"
	configloader "github.com/foxseedlab/tsuyaku/external/config"
	repositoryimpl "github.com/foxseedlab/tsuyaku/external/repository"
	transcriberimpl "github.com/foxseedlab/tsuyaku/external/transcriber"
	translatorimpl "github.com/foxseedlab/tsuyaku/external/translator"
	webhookimpl "github.com/foxseedlab/tsuyaku/external/webhook"
	"github.com/foxseedlab/tsuyaku/external/websocket"
	"github.com/foxseedlab/tsuyaku/internal/config"
	"github.com/foxseedlab/tsuyaku/internal/history"
	"github.com/foxseedlab/tsuyaku/internal/session"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "speech_provider", cfg.SpeechProvider, "translation_provider", cfg.TranslationProvider)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching websocket server")
	runServer(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	translatorimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	history.RegisterDI(injector)
	websocket.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) {
	server, err := do.Invoke[*websocket.Server](injector)
	if err != nil {
		slog.Error("failed to resolve websocket server", "error", err)
		os.Exit(1)
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		slog.Info("startup: listening", "listen_addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown, so sessions
	// are stopped explicitly before the providers are closed.
	stopped := manager.StopAll(ctx)
	slog.Info("sessions stopped", "count", stopped)
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
	if report := injector.ShutdownWithContext(ctx); report != nil && !report.Succeed {
		slog.Error("dependency shutdown failed", "error", report.Error())
	}
}
