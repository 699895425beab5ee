// Package main is the herbtrace API server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/herbtrace/herbtrace/pkg/config"
	"github.com/herbtrace/herbtrace/pkg/database"
	"github.com/herbtrace/herbtrace/pkg/server"
)

func main() {
	flags := pflag.NewFlagSet("herbtrace-server", pflag.ExitOnError)
	configPath := flags.String("config", os.Getenv("HERBTRACE_CONFIG"), "Path to YAML config file")
	flags.String("listen", ":8080", "Address to listen on")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("db-type", "sqlite", "Database type (sqlite, postgres or mysql)")
	flags.String("db-dsn", "", "Database connection string")
	flags.String("auth-mode", "header", "Identity source (header or jwt)")
	flags.Bool("enforce-adjacency", false, "Only allow forward status transitions")
	flags.AddGoFlagSet(flag.CommandLine)
	_ = flags.Parse(os.Args[1:])

	// glog is used for fatal startup errors only.
	_ = flag.Set("logtostderr", "true")

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting herbtrace server",
		"listen", cfg.Server.Listen,
		"database", cfg.Database.Type,
		"authMode", cfg.Auth.Mode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()

	srv, err := server.New(ctx, cfg, db, server.WithLogger(logger))
	if err != nil {
		glog.Fatalf("Failed to initialize server: %v", err)
	}

	go srv.RetentionWorker().Run(ctx)

	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: srv.Handler(),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("herbtrace server ready", "listen", cfg.Server.Listen)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("herbtrace server stopped")
}
