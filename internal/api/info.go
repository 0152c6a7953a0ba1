package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/updater"
)

type infoResponse struct {
	ManagerVersion     string                  `json:"manager_version"`
	GoOS               string                  `json:"os"`
	GoArch             string                  `json:"arch"`
	JavaPath           string                  `json:"java_path,omitempty"`
	JavaError          string                  `json:"java_error,omitempty"`
	DownloaderPath     string                  `json:"downloader_path"`
	DownloaderPresent  bool                    `json:"downloader_installed"`
	DownloaderLoggedIn bool                    `json:"downloader_authenticated"`
	RunningInstances   []string                `json:"running_instances"`
	ManagerRelease     *updater.ManagerRelease `json:"manager_release,omitempty"`
}

func (api *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := infoResponse{
		ManagerVersion:     updater.ManagerVersion,
		GoOS:               runtime.GOOS,
		GoArch:             runtime.GOARCH,
		DownloaderPath:     api.Downloader.Path,
		DownloaderPresent:  api.Downloader.Installed(),
		DownloaderLoggedIn: api.Downloader.HasCredentials(),
		RunningInstances:   api.Supervisor.Running(),
	}

	if api.JVM != nil {
		if javaPath, err := api.JVM.Resolve(r.Context()); err != nil {
			info.JavaError = err.Error()
		} else {
			info.JavaPath = javaPath
		}
	}

	if r.URL.Query().Get("check_release") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		if rel, err := updater.CheckManagerRelease(ctx); err == nil {
			info.ManagerRelease = rel
		}
	}

	writeJSON(w, http.StatusOK, info)
}
