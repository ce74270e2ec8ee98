// Package handler exposes the checkpoint engine over HTTP. Scan routes always answer 200 with a decision.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"qr-access-control/internal/checkpoint"
	"qr-access-control/internal/httpapi"
)

// Scanner is the engine surface the handler needs; *checkpoint.Engine implements it.
type Scanner interface {
	Scan(ctx context.Context, raw string, cp checkpoint.Context) checkpoint.Decision
}

// GateScanRequest is the body of POST /validate/scan.
type GateScanRequest struct {
	QR     string `json:"qr"`
	GateID string `json:"gateId"`
}

// ZoneScanRequest is the body of POST /zones/checkpoint/scan.
type ZoneScanRequest struct {
	QR               string `json:"qr"`
	ZoneCheckpointID string `json:"zoneCheckpointId"`
}

// Server serves the scan routes.
type Server struct {
	scanner Scanner
}

// NewServer returns a scan handler backed by scanner.
func NewServer(scanner Scanner) *Server {
	return &Server{scanner: scanner}
}

// Register mounts the scan routes on r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/validate/scan", s.ScanGate).Methods(http.MethodPost)
	r.HandleFunc("/zones/checkpoint/scan", s.ScanZone).Methods(http.MethodPost)
}

// ScanGate handles a gate scan. A malformed body is a DENY(INVALID) decision, not a 400.
func (s *Server) ScanGate(w http.ResponseWriter, r *http.Request) {
	var req GateScanRequest
	if !decode(w, r, &req) {
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, s.scanner.Scan(r.Context(), req.QR, checkpoint.Gate(req.GateID)))
}

// ScanZone handles a zone checkpoint scan.
func (s *Server) ScanZone(w http.ResponseWriter, r *http.Request) {
	var req ZoneScanRequest
	if !decode(w, r, &req) {
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, s.scanner.Scan(r.Context(), req.QR, checkpoint.Zone(req.ZoneCheckpointID)))
}

// decode parses the body; on failure it answers DENY(INVALID) itself.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	probe := &discardWriter{header: http.Header{}}
	if httpapi.DecodeJSON(probe, r, v) {
		return true
	}
	httpapi.WriteJSON(w, http.StatusOK, checkpoint.Decision{Outcome: checkpoint.Deny, Reason: checkpoint.ReasonInvalid})
	return false
}

// discardWriter swallows the 4xx DecodeJSON would write; scan routes never fail at the transport level.
type discardWriter struct {
	header http.Header
}

func (d *discardWriter) Header() http.Header         { return d.header }
func (d *discardWriter) Write(b []byte) (int, error) { return len(b), nil }
func (d *discardWriter) WriteHeader(int)             {}
