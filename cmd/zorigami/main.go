// Command zorigami runs the backup core as a long-lived process: it loads
// configuration, opens the catalog, builds a pack-store for every
// configured Store, and runs the scheduler and restore worker until
// interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nlfiedler/zorigami-sub002/internal/backup"
	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
	"github.com/nlfiedler/zorigami-sub002/internal/config"
	"github.com/nlfiedler/zorigami-sub002/internal/dbbackup"
	"github.com/nlfiedler/zorigami-sub002/internal/packstore"
	"github.com/nlfiedler/zorigami-sub002/internal/restore"
	"github.com/nlfiedler/zorigami-sub002/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		slog.Error("zorigami: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := catalog.NewRegistry()
	cat, err := registry.Open(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("open catalog %s: %w", cfg.CatalogPath, err)
	}
	defer cat.Close()

	if err := cat.PutConfiguration(catalog.Configuration{
		Hostname:   cfg.Hostname,
		Username:   cfg.Username,
		ComputerID: cfg.ComputerID,
	}); err != nil {
		return fmt.Errorf("record configuration: %w", err)
	}

	datasets, err := cat.ListDatasets()
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}
	for _, d := range datasets {
		if err := cat.PutComputerID(d.ID, cfg.ComputerID); err != nil {
			return fmt.Errorf("record computer id for dataset %s: %w", d.ID, err)
		}
	}

	ctx := context.Background()
	stores, err := cat.ListStores()
	if err != nil {
		return fmt.Errorf("list stores: %w", err)
	}
	store, err := packstore.BuildMulti(ctx, stores)
	if err != nil {
		return fmt.Errorf("build pack-store: %w", err)
	}

	workspace := workspaceFor(cfg)

	state := supervisor.NewStore()
	state.Subscribe("log", func(datasetID string, status supervisor.BackupStatus, _ *supervisor.BackupStatus) {
		slog.Info("backup status", "dataset", datasetID, "status", status.Kind.String(), "message", status.Message)
	})

	scheduler := &supervisor.Scheduler{
		Catalog:  cat,
		Datasets: cat,
		Performer: &backup.Performer{
			Catalog:    cat,
			Store:      store,
			ComputerID: cfg.ComputerID,
			Passphrase: cfg.Passphrase,
		},
		State:        state,
		TickInterval: cfg.TickInterval,
	}

	cache := restore.NewPackCache(cat, store, workspace)
	restorer := restore.NewRestorer(cat, cache, workspace)

	scheduler.Start()
	restorer.Start()
	state.SetRestorerLifecycle(supervisor.Running)
	slog.Info("zorigami: started", "computer_id", cfg.ComputerID, "catalog", cfg.CatalogPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("zorigami: shutting down")
	state.SetRestorerLifecycle(supervisor.StoppingLifecycle)
	restorer.Stop()
	state.SetRestorerLifecycle(supervisor.Stopped)
	scheduler.Stop()

	if _, err := dbbackup.CreateBackup(context.Background(), cat, store, cfg.ComputerID, cfg.Passphrase, workspace); err != nil {
		slog.Error("zorigami: final catalog self-backup failed", "error", err)
	}
	return nil
}

func workspaceFor(cfg config.Config) string {
	if cfg.Workspace != "" {
		return cfg.Workspace
	}
	return os.TempDir()
}
