package api

import (
	"net/http"

	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
)

// handleGetFiles lists a directory, or returns the raw content of a file.
func (api *Server) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	isDir, err := api.Registry.IsDir(name, path)
	if err != nil {
		writeError(w, err)
		return
	}

	if isDir {
		files, err := api.Registry.ListFiles(name, path)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, files)
		return
	}

	content, err := api.Registry.ReadFile(name, path)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(content)
}

func (api *Server) handleSaveFileContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		badRequest(w, "missing path")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, instance.MaxFileSize+1)
	if err := api.Registry.WriteFile(r.PathValue("name"), path, r.Body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		badRequest(w, "missing path")
		return
	}

	if err := api.Registry.DeleteFile(r.PathValue("name"), path); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
