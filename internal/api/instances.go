package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
)

func (api *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	list, err := api.Registry.Summaries(api.BackupManager.LastBackup)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (api *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := api.Registry.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (api *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	inst, err := api.Registry.Create(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (api *Server) handleImportInstance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		SourcePath string `json:"source_path"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.SourcePath == "" {
		badRequest(w, "source_path is required")
		return
	}

	inst, err := api.Registry.Import(context.WithoutCancel(r.Context()), req.Name, req.SourcePath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (api *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if err := api.Registry.SetActive(req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": req.Name})
}

func (api *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if err := api.Registry.Reorder(req.Names); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *Server) handleRenameInstance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewName string `json:"new_name"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	inst, err := api.Registry.Rename(r.PathValue("name"), req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (api *Server) handleAssignPorts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GamePort *int `json:"game_port"`
		WebPort  *int `json:"webserver_port"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	inst, err := api.Registry.AssignPorts(r.PathValue("name"), req.GamePort, req.WebPort)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (api *Server) handleUpdateStartup(w http.ResponseWriter, r *http.Request) {
	var req domain.StartupArgs
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	name := r.PathValue("name")
	if err := api.Registry.UpdateStartup(name, req); err != nil {
		writeError(w, err)
		return
	}
	inst, err := api.Registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (api *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	deleteFiles, _ := strconv.ParseBool(r.URL.Query().Get("delete_files"))

	if err := api.Registry.Delete(r.PathValue("name"), deleteFiles); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
