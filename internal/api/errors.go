package api

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidPath),
		errors.Is(err, domain.ErrInvalidStartup):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNameTaken),
		errors.Is(err, domain.ErrPortConflict),
		errors.Is(err, domain.ErrOperationInProgress),
		errors.Is(err, domain.ErrAlreadyRunning),
		errors.Is(err, domain.ErrNotRunning),
		errors.Is(err, domain.ErrStopTimeout),
		errors.Is(err, domain.ErrUpdateInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotInstalled),
		errors.Is(err, domain.ErrInvalidBackup),
		errors.Is(err, domain.ErrNoServerState),
		errors.Is(err, domain.ErrDegraded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDownloaderMissing),
		errors.Is(err, domain.ErrAuthExpired):
		return http.StatusFailedDependency
	case errors.Is(err, domain.ErrConnection),
		errors.Is(err, domain.ErrCorruptArchive):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("could not write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
