package handler

import (
	"net/http"

	"github.com/drsaint1/TradeGPT/internal/monitor"
)

// MonitorStatus exposes the stop-loss monitor's snapshot. Satisfied by
// *monitor.Monitor.
type MonitorStatus interface {
	Status() monitor.Status
}

// StatusHandler serves the stop-loss monitor status for dashboards and
// health probes.
type StatusHandler struct {
	monitor MonitorStatus
}

func NewStatusHandler(m MonitorStatus) *StatusHandler {
	return &StatusHandler{monitor: m}
}

// GetStatus returns the last-committed monitor snapshot. Reading the status
// never blocks on or triggers an evaluation cycle.
// GET /api/stop-loss/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}
