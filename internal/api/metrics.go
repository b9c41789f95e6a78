package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-leap/internal/bridges/lutron"
	"github.com/nerrad567/gray-logic-leap/internal/device"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	WebSocket     WSMetrics          `json:"websocket"`
	Bridges       BridgeMetrics      `json:"bridges"`
	Engine        lutron.EngineStats `json:"engine"`
	Devices       device.Stats       `json:"devices"`
	Automation    AutomationMetrics  `json:"automation"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// BridgeMetrics summarises bridge sessions by state.
type BridgeMetrics struct {
	Total     int            `json:"total"`
	Connected int            `json:"connected"`
	ByState   map[string]int `json:"by_state"`
}

// AutomationMetrics counts configured triggers and linked rules.
type AutomationMetrics struct {
	Triggers    int `json:"triggers"`
	LinkedRules int `json:"linked_rules"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Engine:  s.bridge.Stats(),
		Devices: s.devices.GetStats(),
	}

	sessions := s.bridge.Sessions()
	metrics.Bridges = BridgeMetrics{
		Total:   len(sessions),
		ByState: make(map[string]int),
	}
	for _, sess := range sessions {
		metrics.Bridges.ByState[sess.State]++
		if sess.Connected {
			metrics.Bridges.Connected++
		}
	}

	if s.triggers != nil {
		metrics.Automation.Triggers = s.triggers.GetTriggerCount()
	}
	if s.linked != nil {
		metrics.Automation.LinkedRules = s.linked.Len()
	}

	writeJSON(w, http.StatusOK, metrics)
}
