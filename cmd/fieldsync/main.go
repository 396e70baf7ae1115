// Copyright 2026 FieldOps
// SPDX-License-Identifier: Apache-2.0

// Command fieldsync runs the offline-first sync engine as a long-lived
// agent on the driver's device, or fires a one-shot sync cycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldops/fieldsync/fieldstore"
	"github.com/fieldops/fieldsync/fieldsync"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first sync engine for the field-service app",
	Long: `fieldsync keeps the on-device store of service orders, routes and
captured photos reconciled with the central server. It drains the durable
action queue, pushes dirty records, uploads photos and pulls incremental
updates whenever connectivity allows.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync agent until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runAgent(ctx, false)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Perform a single sync cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runAgent(ctx, true)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default fieldsync.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)

	viper.SetDefault("api.base_url", "http://localhost:8080")
	viper.SetDefault("db.path", "fieldsync.db")
	viper.SetDefault("sync.interval", "5m")
	viper.SetDefault("probe.interval", "15s")
	viper.SetDefault("log.level", "info")
}

func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("fieldsync")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("FIELDSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults plus env cover the rest.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func newLogger() *slog.Logger {
	var w io.Writer = os.Stderr
	if logFile := viper.GetString("log.file"); logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
	}
	level := slog.LevelInfo
	switch viper.GetString("log.level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openStore(logger *slog.Logger) fieldstore.Backend {
	store, err := fieldstore.Open(viper.GetString("db.path"))
	if err != nil {
		logger.Error("failed to open local database, running degraded in-memory store",
			"path", viper.GetString("db.path"), "error", err)
		return fieldstore.NewFlatStore()
	}
	return store
}

func runAgent(ctx context.Context, oneShot bool) error {
	if err := loadConfig(); err != nil {
		return err
	}
	logger := newLogger()
	slog.SetDefault(logger)

	store := openStore(logger)
	defer store.Close()
	if caps := store.Capabilities(); !caps.Durable {
		logger.Warn("store is not durable, offline mutations will not survive a restart")
	}

	baseURL := viper.GetString("api.base_url")
	remote := fieldsync.NewHTTPRemote(baseURL, fieldsync.StaticToken(viper.GetString("api.token")))
	monitor := fieldsync.NewMonitor(
		&fieldsync.HTTPProber{URL: baseURL + "/healthz"},
		viper.GetDuration("probe.interval"),
		logger,
	)
	queue := fieldsync.NewQueue(store)
	uploader := fieldsync.NewUploader(store, remote, queue, monitor.Online, logger)
	config := &fieldsync.Config{SyncInterval: viper.GetDuration("sync.interval")}
	orch := fieldsync.NewOrchestrator(store, queue, remote, nil, uploader, monitor, config, logger)

	if oneShot {
		return orch.SyncCycle(ctx)
	}

	go drainEvents(ctx, orch, logger)
	go func() {
		if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("connectivity monitor stopped", "error", err)
		}
	}()

	logger.Info("sync agent started", "api", baseURL, "interval", config.SyncInterval)
	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func drainEvents(ctx context.Context, orch *fieldsync.Orchestrator, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-orch.Events():
			switch ev.Kind {
			case fieldsync.EventSyncSucceeded:
				logger.Info("sync succeeded", "last_sync_at", ev.LastSyncAt.Format(time.RFC3339))
			case fieldsync.EventSyncFailed:
				logger.Warn("sync failed", "error", ev.Err)
			case fieldsync.EventActionDropped:
				logger.Warn("offline action dropped after exhausting retries",
					"action", ev.Action.ID, "type", ev.Action.Type)
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
