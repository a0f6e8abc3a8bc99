package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/brickd/internal/action"
	"github.com/nerrad567/brickd/internal/brick"
)

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Dispatcher    action.Stats   `json:"dispatcher"`
	Script        ScriptMetrics  `json:"script"`
	Devices       DeviceMetrics  `json:"devices"`
	Components    map[string]any `json:"components,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains websocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ScriptMetrics reports the script runner state.
type ScriptMetrics struct {
	Running bool `json:"running"`
}

// DeviceMetrics lists the devices the brick currently holds open.
type DeviceMetrics struct {
	Total  int                `json:"total"`
	ByKind map[string]int     `json:"by_kind"`
	Open   []brick.DeviceInfo `json:"open"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket:  WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Dispatcher: s.dispatcher.Stats(),
		Devices:    DeviceMetrics{ByKind: map[string]int{}, Open: []brick.DeviceInfo{}},
	}

	if runner := s.dispatcher.Scripts(); runner != nil {
		m.Script.Running = runner.IsScriptRunning()
	}

	if s.brick != nil {
		m.Devices.Open = s.brick.Devices()
		m.Devices.Total = len(m.Devices.Open)
		m.Devices.ByKind = s.brick.CountByKind()
	}

	if len(s.metrics) > 0 {
		m.Components = make(map[string]any, len(s.metrics))
		for name, fn := range s.metrics {
			m.Components[name] = fn()
		}
	}

	writeJSON(w, http.StatusOK, m)
}
