package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/app"
	"github.com/Stormster/hytale-server-manager-sub000/internal/backup"
	"github.com/Stormster/hytale-server-manager-sub000/internal/downloader"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/jvm"
	"github.com/Stormster/hytale-server-manager-sub000/internal/metrics"
	"github.com/Stormster/hytale-server-manager-sub000/internal/runner"
	"github.com/Stormster/hytale-server-manager-sub000/internal/storage"
	"github.com/Stormster/hytale-server-manager-sub000/internal/updater"
	"github.com/rs/zerolog/log"
)

type Server struct {
	Registry      *instance.Registry
	Supervisor    *runner.Supervisor
	Store         *storage.GormStore
	BackupManager *backup.Manager
	Updater       *updater.Orchestrator
	JVM           *jvm.Manager
	Downloader    *downloader.Client

	// Token, when set, must accompany every request.
	Token string
}

func NewAPIServer(container *app.Container, token string) *Server {
	return &Server{
		Registry:      container.Registry,
		Supervisor:    container.Supervisor,
		Store:         container.Store,
		BackupManager: container.BackupManager,
		Updater:       container.Updater,
		JVM:           container.JvmManager,
		Downloader:    container.Downloader,
		Token:         token,
	}
}

// Handler builds the full route table with middleware applied.
func (api *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/instances", api.handleListInstances)
	mux.HandleFunc("POST /api/instances", api.handleCreateInstance)
	mux.HandleFunc("POST /api/instances/import", api.handleImportInstance)
	mux.HandleFunc("PUT /api/instances/active", api.handleSetActive)
	mux.HandleFunc("PUT /api/instances/reorder", api.handleReorder)
	mux.HandleFunc("GET /api/instances/{name}", api.handleGetInstance)
	mux.HandleFunc("PUT /api/instances/{name}/rename", api.handleRenameInstance)
	mux.HandleFunc("PUT /api/instances/{name}/ports", api.handleAssignPorts)
	mux.HandleFunc("PUT /api/instances/{name}/startup", api.handleUpdateStartup)
	mux.HandleFunc("DELETE /api/instances/{name}", api.handleDeleteInstance)

	mux.HandleFunc("GET /api/instances/{name}/files", api.handleGetFiles)
	mux.HandleFunc("PUT /api/instances/{name}/files", api.handleSaveFileContent)
	mux.HandleFunc("DELETE /api/instances/{name}/files", api.handleDeleteFile)

	mux.HandleFunc("GET /api/server/status", api.handleServerStatus)
	mux.HandleFunc("GET /api/server/status-all", api.handleServerStatusAll)
	mux.HandleFunc("POST /api/server/start", api.handleStartServer)
	mux.HandleFunc("POST /api/server/stop", api.handleStopServer)
	mux.HandleFunc("POST /api/server/restart", api.handleRestartServer)
	mux.HandleFunc("GET /api/server/console", api.handleConsoleEvents)
	mux.HandleFunc("POST /api/server/command", api.handleSendCommand)

	mux.HandleFunc("GET /api/updater/status", api.handleUpdaterStatus)
	mux.HandleFunc("POST /api/updater/check", api.handleCheckUpdate)
	mux.HandleFunc("GET /api/updater/check-all", api.handleCheckAll)
	mux.HandleFunc("GET /api/updater/setup-ready", api.handleSetupReady)
	mux.HandleFunc("POST /api/updater/setup", api.handleInstall)
	mux.HandleFunc("POST /api/updater/update", api.handleInstall)
	mux.HandleFunc("POST /api/updater/update-all", api.handleUpdateAll)
	mux.HandleFunc("POST /api/updater/cancel", api.handleCancelUpdate)
	mux.HandleFunc("POST /api/updater/authenticate", api.handleAuthenticate)

	mux.HandleFunc("GET /api/backups", api.handleListBackups)
	mux.HandleFunc("POST /api/backups", api.handleCreateBackup)
	mux.HandleFunc("POST /api/backups/{folder}/restore", api.handleRestoreBackup)
	mux.HandleFunc("PUT /api/backups/{folder}/rename", api.handleRenameBackup)
	mux.HandleFunc("DELETE /api/backups/{folder}", api.handleDeleteBackup)
	mux.HandleFunc("GET /api/backups/{folder}/archive", api.handleExportBackup)

	mux.HandleFunc("GET /api/settings/port-range", api.handleGetPortRange)
	mux.HandleFunc("PUT /api/settings/port-range", api.handleSetPortRange)
	mux.HandleFunc("GET /api/info", api.handleInfo)
	mux.HandleFunc("POST /api/auth/ticket", api.handleIssueTicket)

	mux.HandleFunc("GET /ws/instances/{name}/console", api.handleConsole)
	mux.Handle("GET /metrics", metrics.Handler())

	return api.loggingMiddleware(api.corsMiddleware(api.authMiddleware(mux)))
}

// Start serves the API until ctx ends, then shuts the listener down.
func (api *Server) Start(ctx context.Context, listenAddr string) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", listenAddr).Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (api *Server) handleGetPortRange(w http.ResponseWriter, r *http.Request) {
	start, end, err := api.Store.GetPortRange()
	if err != nil || start <= 0 {
		start, end = api.Registry.Ports.Start, api.Registry.Ports.End
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"start": start,
		"end":   end,
	})
}

func (api *Server) handleSetPortRange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start int `json:"start"`
		End   int `json:"end"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.Start <= 0 || req.End < req.Start || req.End > 65535 {
		badRequest(w, "invalid port range")
		return
	}

	if err := api.Store.SetPortRange(req.Start, req.End); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
