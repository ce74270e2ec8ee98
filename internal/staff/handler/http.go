// Package handler serves staff login over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"qr-access-control/internal/httpapi"
	"qr-access-control/internal/logging"
	"qr-access-control/internal/staff/service"
)

// Authenticator logs staff in; *service.Service implements it.
type Authenticator interface {
	Login(ctx context.Context, staffID, pin string) (*service.Profile, error)
}

// LoginRequest is the body of POST /api/staff/login.
type LoginRequest struct {
	StaffID string `json:"staffId"`
	PIN     string `json:"pin"`
}

// Server serves the staff routes.
type Server struct {
	auth   Authenticator
	logger *zap.Logger
}

// NewServer returns a staff handler. logger may be nil.
func NewServer(auth Authenticator, logger *zap.Logger) *Server {
	return &Server{auth: auth, logger: logging.OrNop(logger)}
}

// Register mounts the staff routes on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/api/staff/login", s.Login).Methods(http.MethodPost)
}

// Login handles POST /api/staff/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	p, err := s.auth.Login(r.Context(), req.StaffID, req.PIN)
	switch {
	case err == nil:
		httpapi.WriteJSON(w, http.StatusOK, p)
	case errors.Is(err, service.ErrInvalidRequest):
		httpapi.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrStaffNotFound):
		httpapi.WriteError(w, http.StatusNotFound, "staff not found")
	case errors.Is(err, service.ErrInvalidPIN):
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid PIN")
	default:
		s.logger.Error("staff login failed", logging.StaffID(req.StaffID), zap.Error(err))
		httpapi.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
