// Package handler serves the scan-attempt history over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"qr-access-control/internal/audit/domain"
	auditrepo "qr-access-control/internal/audit/repository"
	"qr-access-control/internal/httpapi"
)

// maxLimit caps the limit query parameter.
const maxLimit = 200

// Server serves GET /api/tickets/{id}/attempts.
type Server struct {
	repo   auditrepo.Repository
	logger *zap.Logger
}

// NewServer returns an attempts handler backed by repo. logger may be nil.
func NewServer(repo auditrepo.Repository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{repo: repo, logger: logger}
}

// Register mounts the attempts route on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/api/tickets/{id}/attempts", s.ListAttempts).Methods(http.MethodGet)
}

// ListAttemptsResponse is the JSON body of ListAttempts.
type ListAttemptsResponse struct {
	TicketID string            `json:"ticketId"`
	Attempts []*domain.Attempt `json:"attempts"`
}

// ListAttempts returns the most recent attempts for the ticket, newest first.
// Optional ?limit=N (1..200, default 50).
func (s *Server) ListAttempts(w http.ResponseWriter, r *http.Request) {
	ticketID := mux.Vars(r)["id"]
	if ticketID == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "ticket id required")
		return
	}
	limit := auditrepo.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpapi.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}
	list, err := s.repo.ListByTicket(r.Context(), ticketID, limit)
	if err != nil {
		s.logger.Error("list scan attempts failed", zap.String("ticket_id", ticketID), zap.Error(err))
		httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*domain.Attempt{}
	}
	httpapi.WriteJSON(w, http.StatusOK, ListAttemptsResponse{TicketID: ticketID, Attempts: list})
}
