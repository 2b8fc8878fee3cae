package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gonglijing/clinisense/internal/circuit"
)

// HealthStatus 健康检查状态
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy, degraded
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Results   map[string]CheckResult `json:"checks"`
	System    SystemInfo             `json:"system"`
}

// CheckResult 单个检查项
type CheckResult struct {
	Status  string `json:"status"` // pass, fail
	Message string `json:"message,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	GoVersion  string  `json:"go_version"`
	Goroutines int     `json:"goroutines"`
	MemoryMB   float64 `json:"memory_mb"`
}

// startTime 程序启动时间
var startTime = time.Now()

func (h *Handler) runChecks(ctx context.Context) map[string]CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]CheckResult, len(names)+1)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = CheckResult{Status: "fail", Message: err.Error()}
			continue
		}
		results[name] = CheckResult{Status: "pass"}
	}
	if h.breaker != nil {
		res := CheckResult{Status: "pass", Message: h.breaker.State().String()}
		if h.breaker.State() == circuit.Open {
			res.Status = "fail"
		}
		results["upstream"] = res
	}
	return results
}

// Health 健康检查接口；依赖失败时 status=degraded，仍返回 200
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Results:   h.runChecks(r.Context()),
		System: SystemInfo{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
			MemoryMB:   float64(m.Alloc) / 1024 / 1024,
		},
	}
	for _, res := range status.Results {
		if res.Status == "fail" {
			status.Status = "degraded"
			break
		}
	}
	WriteJSON(w, http.StatusOK, status)
}

// Readiness 就绪检查接口：存储与缓存可用；上游熔断不影响就绪，看板会降级显示
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	results := h.runChecks(r.Context())
	for name, res := range results {
		if name == "upstream" {
			continue
		}
		if res.Status == "fail" {
			http.Error(w, "Not ready: "+name+": "+res.Message, http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Liveness 存活检查接口
func Liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
