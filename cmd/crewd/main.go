package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nmarkou/crewd/internal/config"
	"github.com/nmarkou/crewd/internal/gateway"
	"github.com/nmarkou/crewd/internal/natsbus"
	"github.com/nmarkou/crewd/internal/notify"
	"github.com/nmarkou/crewd/internal/store"
	"github.com/nmarkou/crewd/internal/team"
	"github.com/nmarkou/crewd/internal/vault"
	"github.com/nmarkou/crewd/internal/watchdog"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("crewd %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: crewd <command>\n\nCommands:\n  gateway    Start the crewd gateway service\n  backup     Archive the data directory\n  restore    Restore a data directory archive\n  version    Print version\n")
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting crewd gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var v *vault.Vault
	if cfg.Vault.Passphrase != "" {
		v = vault.New(cfg.Vault.Passphrase)
		slog.Info("session snapshot sealing enabled")
	} else {
		slog.Warn("vault passphrase not set, session snapshots stored in plaintext")
	}

	// SQLite store
	db, err := store.New(cfg.Store, v)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	nc, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer nc.Close()

	// Team manager
	mgr := team.NewManager(db, nc)

	// Recovery watchdog
	if cfg.Watchdog.Enabled {
		wd := watchdog.New(mgr, cfg.Watchdog)
		ids, err := db.WatchableTeamIDs()
		if err != nil {
			return fmt.Errorf("list watchable teams: %w", err)
		}
		for _, id := range ids {
			wd.Watch(id)
		}
		go wd.Start(ctx)
	}

	// Telegram recovery alerts
	if cfg.Telegram.Token != "" {
		notifier, err := notify.New(cfg.Telegram)
		if err != nil {
			return fmt.Errorf("init notifier: %w", err)
		}
		go func() {
			if err := notifier.Start(ctx, nc); err != nil {
				slog.Error("notifier error", "error", err)
			}
		}()
		slog.Info("telegram alerts enabled", "chat", cfg.Telegram.ChatID)
	} else {
		slog.Warn("telegram token not set, alerts disabled")
	}

	// Gateway
	srv := gateway.NewServer(cfg.Gateway, mgr, nc, version)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
		cancel()
		return <-errCh
	case err := <-errCh:
		return err
	}
}
