package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"benchdeck/internal/audit"
	"benchdeck/internal/config"
	"benchdeck/internal/daemon"
	"benchdeck/internal/keychain"
	"benchdeck/internal/settings"
	"benchdeck/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the benchdeck daemon",
	Long:  "Start the backend daemon: supervises the benchmarking worker, relays its events, and serves the frontend API.",
	RunE:  runDaemon,
}

var (
	apiAddr    string
	configPath string
)

func init() {
	daemonCmd.Flags().StringVar(&apiAddr, "api-addr", "", "Optional TCP address for the frontend API (e.g. 127.0.0.1:9090)")
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Config file path (default ~/.benchdeck/config.yaml)")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.DefaultDir(), 0700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	slog.Info("benchdeck daemon starting", "config", configPath, "worker", cfg.BaseURL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	auditLog, err := audit.NewLogger(auditLogPath())
	if err != nil {
		return err
	}
	defer auditLog.Close()
	creds := keychain.NewAuditedStore(keychain.NewSystemStore(), auditLog, "daemon")

	store := settings.NewStore(cfg.SettingsPath)

	d := daemon.New(cfg, store, daemon.WithCredentials(creds))
	srv := ui.NewServer(ctx, d)

	if err := d.Start(ctx); err != nil {
		// A worker that never comes up is not fatal for the daemon: the
		// frontend still needs the API to show the failure and retry.
		slog.Error("worker start failed", "error", err)
	}

	go func() {
		if err := d.WatchSettings(ctx); err != nil {
			slog.Error("settings watcher stopped", "error", err)
		}
	}()

	socketPath := cfg.UISocket
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenUnix(socketPath)
	}()

	if apiAddr != "" {
		go func() {
			if err := srv.ListenTCP(apiAddr); err != nil {
				slog.Error("TCP API error", "error", err)
			}
		}()
	}

	slog.Info("benchdeck daemon ready", "socket", socketPath)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			slog.Error("frontend API error", "error", err)
		}
	}

	cancel()
	d.Stop()
	srv.Shutdown(context.Background())
	os.Remove(socketPath)

	slog.Info("benchdeck daemon stopped")
	return nil
}
