// Package main is the entry point for the session-database command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Recipe-Web-App/session-database-sub000/cmd/session-database/app"
	"github.com/Recipe-Web-App/session-database-sub000/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
