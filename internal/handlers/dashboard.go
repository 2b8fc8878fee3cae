package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/dashboard"
	"github.com/gonglijing/clinisense/internal/database"
	"github.com/gonglijing/clinisense/internal/pipeline"
)

// ListPayload 列表查询结果，附带快照新鲜度
type ListPayload[T any] struct {
	pipeline.Result[T]
	Filterable []string          `json:"filterable"`
	FetchedAt  time.Time         `json:"fetched_at"`
	Stale      bool              `json:"stale"`
	Error      string            `json:"error,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func listPayload[T any](snap *dashboard.Snapshot, res pipeline.Result[T], fields pipeline.Fields[T]) ListPayload[T] {
	return ListPayload[T]{
		Result:     res,
		Filterable: fields.Filterable(),
		FetchedAt:  snap.FetchedAt,
		Stale:      snap.Stale,
		Error:      snap.Error(),
		Errors:     snap.Errors,
	}
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (*dashboard.Snapshot, bool) {
	snap, err := h.dash.Load(r.Context(), scopeOf(r))
	if err != nil {
		h.writeFailure(w, r, err)
		return nil, false
	}
	return snap, true
}

// Summary 看板汇总
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, snap.Summary())
}

// ListSensors 传感器列表（搜索、过滤、排序、分组、分页）
func (h *Handler) ListSensors(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	q := parseListQuery(r, dashboard.SensorFields)
	res := pipeline.Apply(snap.SensorRows(), q, dashboard.SensorFields)
	WriteSuccess(w, listPayload(snap, res, dashboard.SensorFields))
}

// ListAlerts 报警列表
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	q := parseListQuery(r, dashboard.AlertFields)
	res := pipeline.Apply(snap.AlertRows(), q, dashboard.AlertFields)
	WriteSuccess(w, listPayload(snap, res, dashboard.AlertFields))
}

// AlertAction POST /alerts/{id}/{action}，action 为 resolve 或 ignore
func (h *Handler) AlertAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	action, ok := pipeline.ParseAlertAction(mux.Vars(r)["action"])
	if !ok {
		WriteError(w, badRequest("Unknown alert action"))
		return
	}

	session := sessionOf(r)
	updated, err := h.dash.ApplyAlertAction(r.Context(), dashboard.ScopeOf(session), session.UserID, id, action)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	WriteSuccess(w, updated)
}

// AlertHistory 报警处理记录
func (h *Handler) AlertHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	list, err := h.dash.AlertHistory(r.Context(), id, limit)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []*database.AlertAction{}
	}
	WriteSuccess(w, list)
}

// ListFloors 诊所下的楼层
func (h *Handler) ListFloors(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	floors, err := h.api.ListFloors(r.Context(), sessionOf(r).UpstreamToken, id)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	WriteSuccess(w, floors)
}

// ListServices 楼层下的科室
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	services, err := h.api.ListServices(r.Context(), sessionOf(r).UpstreamToken, id)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	WriteSuccess(w, services)
}

// WebSocket 实时推送，订阅会话对应的范围
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	scope := scopeOf(r)
	h.dash.Track(scope)
	if err := h.live.ServeWS(w, r, scope.Key); err != nil {
		// Upgrade 失败时已写出错误响应
		h.log.Debug("websocket upgrade failed", zap.Error(err))
	}
}
