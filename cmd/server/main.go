// Package main initializes and starts the CRM HTTP server, setting up
// configuration, logging, the storage tiers, services and handlers.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/app"
	"github.com/atinyakov/crmkeeper/internal/config"
	"github.com/atinyakov/crmkeeper/internal/logger"
	"github.com/atinyakov/crmkeeper/internal/server/handler/http"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line, file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage tiers, services and the workspace.
	container, err := app.New(ctx, options, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to build application", zap.Error(err))
	}
	defer func() {
		if err := container.Close(); err != nil {
			zapLogger.Error("failed to close connections", zap.Error(err))
		}
	}()
	ws := container.Workspace
	ws.Restore(ctx)

	// Build the router with middleware and routes.
	router := http.NewRouter(http.Handlers{
		Auth:      &http.AuthHandler{AuthService: ws, Log: zapLogger},
		Customers: &http.CustomerHandler{CustomerService: ws, Log: zapLogger},
		Report:    &http.ReportHandler{ReportService: ws, Log: zapLogger},
		Toasts:    &http.ToastHandler{ToastService: ws},
		Sessions:  ws,
	}, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
