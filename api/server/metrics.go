// metrics.go - runtime and share metrics for the healthsnap node
package server

import (
	"log"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
)

// NodeMetrics holds health metrics for the node.
type NodeMetrics struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	ActiveShares   int     `json:"active_shares"`
	ArchivedShares int     `json:"archived_shares"`
	AnchorCount    int     `json:"anchor_count"`
	LedgerBackend  string  `json:"ledger_backend"`
	LedgerHealthy  bool    `json:"ledger_healthy"`
	CPULoadPercent float64 `json:"cpu_load_percent"`
	MemoryMB       float64 `json:"memory_mb"`
	DiskFreeMB     float64 `json:"disk_free_mb"`
}

// GetNodeMetrics returns current health metrics for the node.
func (s *Server) GetNodeMetrics() NodeMetrics {
	m := NodeMetrics{
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		LedgerBackend: s.cfg.LedgerBackend,
		LedgerHealthy: true,
	}

	if s.carrier != nil && s.carrier.Registry != nil {
		m.ActiveShares = s.carrier.Registry.Len()
		m.ArchivedShares = len(s.carrier.Registry.Archived())
	}
	if s.anchors != nil {
		n, err := s.anchors.Count()
		if err != nil {
			log.Printf("[METRICS] anchor count: %v\n", err)
			m.LedgerHealthy = false
		}
		m.AnchorCount = n
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.MemoryMB = float64(ms.Alloc) / (1024 * 1024)

	if u, err := disk.Usage("/"); err == nil {
		m.DiskFreeMB = float64(u.Free) / (1024 * 1024)
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPULoadPercent = pct[0]
	}
	return m
}

// nodeStatus derives a one-word status from metrics.
func nodeStatus(m NodeMetrics) string {
	if !m.LedgerHealthy {
		return "degraded"
	}
	return "healthy"
}
