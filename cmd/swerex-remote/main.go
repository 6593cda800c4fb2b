// Package main is the entry point for the swerex-remote binary.
// swerex-remote exposes interactive shell sessions, one-shot command
// execution and file transfer over an HTTP API so that agents can drive
// a sandboxed environment remotely.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/common/logger"
	"github.com/SWE-agent/SWE-ReX/internal/config"
	"github.com/SWE-agent/SWE-ReX/internal/runtime"
	"github.com/SWE-agent/SWE-ReX/internal/server"
	"github.com/SWE-agent/SWE-ReX/internal/tracing"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		host      string
		port      int
		authToken string
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:           "swerex-remote",
		Short:         "Remote execution server for sandboxed shell sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			// Flags beat config file and environment.
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("auth-token") {
				cfg.Auth.APIKey = authToken
			}
			if flags.Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if flags.Changed("log-format") {
				cfg.Logging.Format = logFormat
			}

			return serve(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&host, "host", "0.0.0.0", "host to bind the server to")
	flags.IntVar(&port, "port", 8880, "port to run the server on")
	flags.StringVar(&authToken, "auth-token", os.Getenv("SWE_REX_API_KEY"),
		"token required in the X-API-Key header (empty disables auth)")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (console, json)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("swerex-remote version %s\n", Version)
			cmd.Printf("Git commit: %s\n", GitCommit)
		},
	}
}

func serve(cfg *config.Config) error {
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("starting swerex-remote",
		zap.String("version", Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("auth_enabled", cfg.Auth.APIKey != ""),
		zap.String("shell", cfg.Session.Shell))

	rt := runtime.New(cfg.Session.BashConfig(), log)
	srv := server.New(rt, cfg.Auth.APIKey, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeoutDuration(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down swerex-remote", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("error shutting down HTTP server", zap.Error(err))
	}
	if err := rt.Close(ctx); err != nil {
		log.Error("error closing runtime", zap.Error(err))
	}
	if err := tracing.Shutdown(ctx); err != nil {
		log.Error("error shutting down tracing", zap.Error(err))
	}

	log.Info("swerex-remote stopped")
	return nil
}
