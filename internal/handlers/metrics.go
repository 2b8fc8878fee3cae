package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gonglijing/clinisense/internal/circuit"
)

// SystemMetrics 系统运行指标
type SystemMetrics struct {
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Go        GoMetrics        `json:"go"`
	Upstream  *circuit.Stats   `json:"upstream,omitempty"`
	Dashboard DashboardMetrics `json:"dashboard"`
}

// GoMetrics Go运行时指标
type GoMetrics struct {
	Version     string  `json:"version"`
	Goroutines  int     `json:"goroutines"`
	MemoryAlloc float64 `json:"memory_alloc_mb"`
	MemoryTotal float64 `json:"memory_total_mb"`
	HeapAlloc   float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
}

// DashboardMetrics 轮询范围与在线连接
type DashboardMetrics struct {
	PolledScopes     int `json:"polled_scopes"`
	WebSocketClients int `json:"websocket_clients"`
}

// Metrics 指标接口
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	metrics := SystemMetrics{
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Go: GoMetrics{
			Version:     runtime.Version(),
			Goroutines:  runtime.NumGoroutine(),
			MemoryAlloc: float64(m.Alloc) / 1024 / 1024,
			MemoryTotal: float64(m.TotalAlloc) / 1024 / 1024,
			HeapAlloc:   float64(m.HeapAlloc) / 1024 / 1024,
			NumGC:       m.NumGC,
		},
	}
	if h.breaker != nil {
		st := h.breaker.Stats()
		metrics.Upstream = &st
	}
	if h.dash != nil {
		metrics.Dashboard.PolledScopes = len(h.dash.Scopes())
	}
	if h.live != nil {
		metrics.Dashboard.WebSocketClients = h.live.ClientCount()
	}
	WriteJSON(w, http.StatusOK, metrics)
}
