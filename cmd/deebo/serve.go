package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	deebo "github.com/snagasuri/deebo-prototype/internal/server"
	"github.com/snagasuri/deebo-prototype/internal/updater"
)

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			// Graceful shutdown on interrupt.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, cleanup, err := deebo.New(ctx, deebo.Options{
				Config:     cfg,
				ConfigPath: g.configPath,
				Logger:     logger,
			})
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			go checkForUpdates(ctx, logger)

			return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
		},
	}
}

// checkForUpdates logs a notice when a newer release exists. Failures are
// only logged at debug level; the check is best effort.
func checkForUpdates(ctx context.Context, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	res, err := updater.NewChecker().Check(ctx, deebo.Version)
	if err != nil {
		logger.Debug("update check failed", zap.Error(err))
		return
	}
	if notice := res.Notice(); notice != "" {
		logger.Info(notice)
	}
}
