package api

import (
	"context"
	"net/http"

	"github.com/Stormster/hytale-server-manager-sub000/internal/ws"
)

type serverRequest struct {
	Instance string `json:"instance"`
	Force    bool   `json:"force"`
}

func (api *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := api.Supervisor.Status(r.Context(), r.URL.Query().Get("instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (api *Server) handleServerStatusAll(w http.ResponseWriter, r *http.Request) {
	all, err := api.Supervisor.StatusAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (api *Server) handleStartServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	if err := api.Supervisor.Start(context.WithoutCancel(r.Context()), req.Instance); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (api *Server) handleStopServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	res, err := api.Supervisor.Stop(r.Context(), req.Instance, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (api *Server) handleRestartServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	if err := api.Supervisor.Restart(context.WithoutCancel(r.Context()), req.Instance); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarted"})
}

func (api *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command  string `json:"command"`
		Instance string `json:"instance"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	if req.Command == "" {
		badRequest(w, "command is required")
		return
	}

	if err := api.Supervisor.SendCommand(req.Instance, req.Command); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleConsoleEvents streams console output of a running server as SSE.
func (api *Server) handleConsoleEvents(w http.ResponseWriter, r *http.Request) {
	inst, err := api.Registry.Resolve(r.URL.Query().Get("instance"))
	if err != nil {
		writeError(w, err)
		return
	}

	ch, cancel, err := api.Supervisor.Subscribe(inst.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	streamEvents(w, r, ch)
}

func (api *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	inst, err := api.Registry.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	ws.ServeConsole(api.Supervisor, inst.Name, w, r)
}
