package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/gin-contrib/sse"
	"github.com/rs/zerolog/log"
)

// PingInterval is how often an idle event stream gets a keep-alive comment.
var PingInterval = 30 * time.Second

// streamEvents writes ch as server-sent events until it closes or the
// client goes away. It returns true when the terminal done event was sent.
func streamEvents(w http.ResponseWriter, r *http.Request, ch <-chan events.Event) bool {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return false
	}

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(PingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			if err := sse.Encode(w, sse.Event{Event: string(ev.Type), Data: ev.Data()}); err != nil {
				log.Debug().Err(err).Msg("event stream write failed")
				return false
			}
			flusher.Flush()
			if ev.Type == events.TypeDone {
				return true
			}
			ping.Reset(PingInterval)
		case <-ping.C:
			if _, err := fmt.Fprintf(w, ": ping - %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
				return false
			}
			flusher.Flush()
		case <-r.Context().Done():
			return false
		}
	}
}
