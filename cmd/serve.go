package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fparisotto/bookmark-hub-sub000/internal/app"
	"github.com/fparisotto/bookmark-hub-sub000/internal/config"
	"github.com/fparisotto/bookmark-hub-sub000/internal/log"
)

var serveJSONLogs bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the ingestion and enrichment workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "emit logs as JSON")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: logLevelFromEnv(), JSON: serveJSONLogs})
	logger.Info("starting bookmarkhub", "version", Version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	// Blocks until the signal context is canceled and every worker returned.
	a.Run(ctx)
	logger.Info("bookmarkhub stopped")
	return nil
}

func logLevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("BOOKMARKHUB_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
