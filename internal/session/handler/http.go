// Package handler serves session issuance over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"qr-access-control/internal/httpapi"
	"qr-access-control/internal/logging"
	"qr-access-control/internal/security"
	"qr-access-control/internal/session/domain"
	"qr-access-control/internal/session/service"
)

// SessionIssuer issues session contexts; *service.Issuer implements it.
type SessionIssuer interface {
	Issue(ctx context.Context, ticketID string) (*domain.Context, error)
}

// IssueRequest is the body of POST /api/tickets/session.
type IssueRequest struct {
	TicketID string `json:"ticketId"`
}

// SessionResponse carries the session key (unpadded base64url) and its expiry in epoch seconds.
type SessionResponse struct {
	TicketID   string `json:"ticketId"`
	EventID    string `json:"eventId"`
	SessionKey string `json:"session_key"`
	Exp        int64  `json:"exp"`
}

// Server serves the session routes.
type Server struct {
	issuer SessionIssuer
	logger *zap.Logger
}

// NewServer returns a session handler backed by issuer. logger may be nil.
func NewServer(issuer SessionIssuer, logger *zap.Logger) *Server {
	return &Server{issuer: issuer, logger: logging.OrNop(logger)}
}

// Register mounts the session routes on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/api/tickets/session", s.IssuePost).Methods(http.MethodPost)
	r.HandleFunc("/api/tickets/{id}/session", s.IssueGet).Methods(http.MethodGet)
}

// IssueGet handles GET /api/tickets/{id}/session.
func (s *Server) IssueGet(w http.ResponseWriter, r *http.Request) {
	s.issue(w, r, mux.Vars(r)["id"])
}

// IssuePost handles POST /api/tickets/session.
func (s *Server) IssuePost(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	s.issue(w, r, req.TicketID)
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, ticketID string) {
	sc, err := s.issuer.Issue(r.Context(), ticketID)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("issue session failed", logging.TicketID(ticketID), zap.Error(err))
		}
		httpapi.WriteError(w, status, msg)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, SessionResponse{
		TicketID:   sc.TicketID,
		EventID:    sc.EventID,
		SessionKey: security.EncodeKey(sc.Key),
		Exp:        sc.ExpiresAt.Unix(),
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "ticketId is required"
	case errors.Is(err, service.ErrTicketNotFound):
		return http.StatusNotFound, "ticket not found"
	case errors.Is(err, service.ErrTicketNotActive):
		return http.StatusConflict, "ticket not active"
	}
	return http.StatusInternalServerError, "internal error"
}
