package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Handler contains the ops HTTP handlers: health and (via Router)
// Prometheus metrics. It holds no reference to the data store; FluxDB's
// read/write surface is fluxdb.Handle, not HTTP.
type Handler struct {
	logger zerolog.Logger
	closed func() bool
}

// NewHandler creates a new ops Handler. closed reports whether the
// engine has been shut down.
func NewHandler(logger zerolog.Logger, closed func() bool) *Handler {
	return &Handler{logger: logger, closed: closed}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// HandleHealth reports whether the engine is open and serving.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	if h.closed() {
		writeError(w, http.StatusServiceUnavailable, "engine closed", "closed")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}
