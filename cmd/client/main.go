// Package main runs the interactive CRM shell over a local workspace.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/app"
	"github.com/atinyakov/crmkeeper/internal/client/shell"
	"github.com/atinyakov/crmkeeper/internal/config"
	"github.com/atinyakov/crmkeeper/internal/logger"
)

var (
	version   string
	buildDate string
)

// main parses the configuration, restores the last session and starts the shell.
func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("CRM Shell\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}
	options := config.Parse()

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(ctx, options, log.Log)
	if err != nil {
		log.Log.Fatal("failed to build application", zap.Error(err))
	}
	defer func() { _ = container.Close() }()

	container.Workspace.Restore(ctx)
	shell.New(container.Workspace, os.Stdin, os.Stdout, log.Log).Run(ctx)
}
