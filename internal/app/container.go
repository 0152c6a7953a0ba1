package app

import (
	"fmt"
	"os"

	"github.com/Stormster/hytale-server-manager-sub000/internal/backup"
	"github.com/Stormster/hytale-server-manager-sub000/internal/config"
	"github.com/Stormster/hytale-server-manager-sub000/internal/downloader"
	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/jvm"
	"github.com/Stormster/hytale-server-manager-sub000/internal/runner"
	"github.com/Stormster/hytale-server-manager-sub000/internal/storage"
	"github.com/Stormster/hytale-server-manager-sub000/internal/updater"
)

type Container struct {
	Config        *config.Config
	Store         *storage.GormStore
	JvmManager    *jvm.Manager
	Downloader    *downloader.Client
	Registry      *instance.Registry
	HubManager    *events.HubManager
	Supervisor    *runner.Supervisor
	BackupManager *backup.Manager
	Updater       *updater.Orchestrator
}

// New opens the store and wires every component from cfg. The supervisor
// and the updater each consult the other before touching an instance.
func New(cfg *config.Config) (*Container, error) {
	for _, path := range cfg.Paths() {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("could not create directory %q: %w", path, err)
		}
	}

	store, err := storage.NewGormStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	registry := instance.NewRegistry(cfg.RootDir, store, instance.PortPolicy{
		Start:     cfg.GamePortBase,
		End:       cfg.GamePortMax,
		WebOffset: cfg.WebPortOffset,
	})

	jvmMgr := jvm.NewManager(cfg.RuntimesPath, cfg.JavaPath, cfg.JavaVersion)
	tool := downloader.NewClient(cfg.DownloaderPath, cfg.ToolsDir, cfg.CacheDir, cfg.DownloaderURL)
	hubManager := events.NewHubManager(cfg.ConsoleHistory)

	backupStore := backup.NewStore(cfg.BackupRetention)
	backupManager := backup.NewManager(registry, backupStore)

	supervisor := runner.NewSupervisor(registry, jvmMgr, hubManager)
	supervisor.StopTimeout = cfg.StopTimeoutDuration()
	supervisor.ForceKillOnTimeout = cfg.ForceKillOnTimeout
	supervisor.StatsInterval = cfg.StatsIntervalDuration()

	orchestrator := updater.New(registry, backupStore, tool, cfg.CacheDir)

	registry.InUse = supervisor.IsRunning
	orchestrator.Servers = supervisor
	supervisor.Updates = orchestrator

	return &Container{
		Config:        cfg,
		Store:         store,
		JvmManager:    jvmMgr,
		Downloader:    tool,
		Registry:      registry,
		HubManager:    hubManager,
		Supervisor:    supervisor,
		BackupManager: backupManager,
		Updater:       orchestrator,
	}, nil
}

func (c *Container) Close() error {
	return c.Store.Close()
}
