package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

func (api *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := api.BackupManager.ListBackups(r.URL.Query().Get("instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

func (api *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label    string `json:"label"`
		Instance string `json:"instance"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.Instance == "" {
		req.Instance = r.URL.Query().Get("instance")
	}

	b, err := api.BackupManager.CreateBackup(context.WithoutCancel(r.Context()), req.Instance, req.Label, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (api *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	inst, err := api.BackupManager.RestoreBackup(context.WithoutCancel(r.Context()), r.URL.Query().Get("instance"), r.PathValue("folder"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (api *Server) handleRenameBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	b, err := api.BackupManager.RenameBackup(r.URL.Query().Get("instance"), r.PathValue("folder"), req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (api *Server) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := api.BackupManager.DeleteBackup(r.URL.Query().Get("instance"), r.PathValue("folder")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	instanceName := r.URL.Query().Get("instance")
	folder := r.PathValue("folder")

	if _, err := api.BackupManager.GetBackup(instanceName, folder); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", folder+".zip"))
	if err := api.BackupManager.ExportBackup(r.Context(), instanceName, folder, w); err != nil {
		log.Warn().Err(err).Str("backup", folder).Msg("backup export interrupted")
	}
}
