/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowclaw/pkg/bot"
	"flowclaw/pkg/config"
	"flowclaw/pkg/logger"
	"flowclaw/pkg/storage"
	"flowclaw/pkg/storage/sqlite"
	"flowclaw/pkg/transport/telegram"

	"github.com/spf13/cobra"
)

const defaultStoragePath = "flowclaw.db"

// botCmd represents the bot command
var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the event processing bot",
	Long:  "Runs FlowClaw against the configured Telegram channel, processing every inbound event through the stage pipeline.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.bot")

		if !cfg.Channels.Telegram.Enabled {
			log.Error("No channels are enabled")
			return
		}

		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			log.Error("Bot configuration invalid", "error", err)
			return
		}

		store, err := openStore(cfg.Storage, log)
		if err != nil {
			log.Error("Failed to open storage", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := bot.NewService(cfg, adapter, store, log)
		if err != nil {
			log.Error("Failed to initialize bot service", "error", err)
			return
		}

		log.Info("Bot started", "channel", adapter.Name(), "stages", svc.Engine().Inspect().Stages)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Bot runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}

// openStore opens the SQLite adapter and wraps it in the TTL read cache.
func openStore(cfg config.StorageConfig, log *slog.Logger) (storage.Store, error) {
	path := cfg.Path
	if path == "" {
		path = defaultStoragePath
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return storage.NewCache(store, ttl, log), nil
}
