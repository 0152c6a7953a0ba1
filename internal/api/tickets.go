package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ticketSubject = "stream"
	ticketTTL     = time.Minute
)

type ticketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
}

// issueTicket signs a short-lived token that query-string clients
// (EventSource, websocket) can present instead of the API secret.
func (api *Server) issueTicket(now time.Time) (ticketResponse, error) {
	if api.Token == "" {
		return ticketResponse{}, errors.New("authentication is disabled")
	}
	exp := now.Add(ticketTTL)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   ticketSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString([]byte(api.Token))
	if err != nil {
		return ticketResponse{}, err
	}
	return ticketResponse{Ticket: signed, ExpiresAt: exp}, nil
}

func (api *Server) validTicket(raw string) bool {
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(*jwt.Token) (interface{}, error) { return []byte(api.Token), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(ticketSubject),
		jwt.WithExpirationRequired(),
	)
	return err == nil
}

func (api *Server) handleIssueTicket(w http.ResponseWriter, r *http.Request) {
	if api.Token == "" {
		writeJSON(w, http.StatusOK, ticketResponse{})
		return
	}
	t, err := api.issueTicket(time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
