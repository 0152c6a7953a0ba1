package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/updater"
	"github.com/Stormster/hytale-server-manager-sub000/internal/version"
)

const authTimeout = 10 * time.Minute

func (api *Server) handleUpdaterStatus(w http.ResponseWriter, r *http.Request) {
	st, err := api.Updater.Status(r.URL.Query().Get("instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (api *Server) handleCheckUpdate(w http.ResponseWriter, r *http.Request) {
	a, err := api.Updater.CheckAvailable(r.Context(), r.URL.Query().Get("instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (api *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	all, err := api.Updater.CheckAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (api *Server) handleSetupReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Updater.SetupReady(r.Context()))
}

// handleInstall serves both setup and update. Without a patchline, an
// installed instance stays on its channel and a fresh one gets release.
func (api *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	inst, err := api.Registry.Resolve(r.URL.Query().Get("instance"))
	if err != nil {
		writeError(w, err)
		return
	}

	ch := domain.ChannelRelease
	if p := r.URL.Query().Get("patchline"); p != "" {
		ch, err = version.ParseChannel(p)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
	} else if instance.IsInstalled(inst.Dir) && inst.Channel != "" {
		ch = inst.Channel
	}

	opts, err := updateOptions(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	op, err := api.Updater.InstallOrUpdate(inst.Name, ch, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Operation-ID", op.ID)
	streamEvents(w, r, op.Stream.Subscribe(r.Context()))
}

func (api *Server) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	var filter []string
	if v := r.URL.Query().Get("instances"); v != "" {
		filter = strings.Split(v, ",")
	}

	opts, err := updateOptions(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	stream, err := api.Updater.UpdateAll(r.Context(), filter, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	streamEvents(w, r, stream.Subscribe(r.Context()))
}

// updateOptions reads stop_running and graceful_minutes from the query
// string or a JSON body.
func updateOptions(r *http.Request) (updater.Options, error) {
	var opts updater.Options
	if err := decode(r, &opts); err != nil {
		return opts, fmt.Errorf("invalid JSON: %w", err)
	}
	q := r.URL.Query()
	if v := q.Get("stop_running"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid stop_running %q", v)
		}
		opts.StopRunning = b
	}
	if v := q.Get("graceful_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("invalid graceful_minutes %q", v)
		}
		opts.GraceMinutes = n
	}
	if opts.GraceMinutes > 0 {
		opts.StopRunning = true
	}
	return opts, opts.Validate()
}

func (api *Server) handleCancelUpdate(w http.ResponseWriter, r *http.Request) {
	inst, err := api.Registry.Resolve(r.URL.Query().Get("instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": api.Updater.Cancel(inst.Name)})
}

// handleAuthenticate refreshes the downloader login and streams what the
// tool prints, which includes the device login URL.
func (api *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	stream := events.NewStream()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		stream.Status("Starting downloader authentication...")
		err := api.Downloader.Authenticate(ctx, stream.Status)
		if err != nil {
			stream.Done(false, "Authentication failed: "+err.Error())
			return
		}
		stream.Done(true, "Authentication complete.")
	}()
	streamEvents(w, r, stream.Subscribe(r.Context()))
}
