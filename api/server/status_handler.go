// status_handler.go - HTTP handler for /status
package server

import (
	"net/http"
)

// HandleStatus responds to /status with node status
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	metrics := s.GetNodeMetrics()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:         nodeStatus(metrics),
		Uptime:         metrics.UptimeSeconds,
		ActiveShares:   metrics.ActiveShares,
		AnchorCount:    metrics.AnchorCount,
		RedemptionPath: s.cfg.RedemptionPath,
		DefaultTTL:     s.cfg.DefaultTTL,
		Version:        NodeVersion(),
		APIVersion:     APIVersion(),
		Metrics:        metrics,
	})
}
