package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/models"
	"github.com/gonglijing/clinisense/internal/validation"
)

// 变更成功后失效全部范围的缓存，下次读取完整重拉，不做局部修补

func list[Out any](h *Handler, w http.ResponseWriter, r *http.Request, call func(ctx context.Context, token string) ([]Out, error)) {
	items, err := call(r.Context(), sessionOf(r).UpstreamToken)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if items == nil {
		items = []Out{}
	}
	WriteSuccess(w, items)
}

func create[In any, Out any](h *Handler, w http.ResponseWriter, r *http.Request, validate func(*In) error, call func(ctx context.Context, token string, in In) (Out, error)) {
	var in In
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, err)
		return
	}
	if err := validate(&in); err != nil {
		WriteError(w, err)
		return
	}
	out, err := call(r.Context(), sessionOf(r).UpstreamToken, in)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.dash.InvalidateAll(r.Context())
	WriteCreated(w, out)
}

func update[In any, Out any](h *Handler, w http.ResponseWriter, r *http.Request, validate func(*In) error, call func(ctx context.Context, token string, id models.ID, in In) (Out, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	var in In
	if err := decodeJSON(w, r, &in); err != nil {
		WriteError(w, err)
		return
	}
	if err := validate(&in); err != nil {
		WriteError(w, err)
		return
	}
	out, err := call(r.Context(), sessionOf(r).UpstreamToken, id, in)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.dash.InvalidateAll(r.Context())
	WriteSuccess(w, out)
}

func remove(h *Handler, w http.ResponseWriter, r *http.Request, call func(ctx context.Context, token string, id models.ID) error) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := call(r.Context(), sessionOf(r).UpstreamToken, id); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.dash.InvalidateAll(r.Context())
	h.log.Info("resource deleted", zap.String("path", r.URL.Path), zap.String("user_id", sessionOf(r).UserID.String()))
	WriteSuccess(w, nil)
}

// ==================== 传感器 ====================

// validateSensor 校验并按族名补默认单位
func (h *Handler) validateSensor(ctx context.Context, token string) func(*models.SensorInput) error {
	return func(in *models.SensorInput) error {
		if err := validation.Sensor(in); err != nil {
			return err
		}
		if in.Unite != "" {
			return nil
		}
		families, err := h.api.ListFamilies(ctx, token)
		if err != nil {
			h.log.Debug("family lookup failed, unit left empty", zap.Error(err))
			return nil
		}
		for _, f := range families {
			if f.ID == in.FamilleID {
				validation.FillDefaultUnit(in, f.Nom)
				break
			}
		}
		return nil
	}
}

// CreateSensor 创建传感器
func (h *Handler) CreateSensor(w http.ResponseWriter, r *http.Request) {
	create(h, w, r, h.validateSensor(r.Context(), sessionOf(r).UpstreamToken), h.api.CreateSensor)
}

// UpdateSensor 更新传感器
func (h *Handler) UpdateSensor(w http.ResponseWriter, r *http.Request) {
	update(h, w, r, h.validateSensor(r.Context(), sessionOf(r).UpstreamToken), h.api.UpdateSensor)
}

// DeleteSensor 删除传感器
func (h *Handler) DeleteSensor(w http.ResponseWriter, r *http.Request) {
	remove(h, w, r, h.api.DeleteSensor)
}

// ==================== 诊所 ====================

// ListClinics 诊所列表
func (h *Handler) ListClinics(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.api.ListClinics)
}

func (h *Handler) CreateClinic(w http.ResponseWriter, r *http.Request) {
	create(h, w, r, validation.Clinic, h.api.CreateClinic)
}

func (h *Handler) UpdateClinic(w http.ResponseWriter, r *http.Request) {
	update(h, w, r, validation.Clinic, h.api.UpdateClinic)
}

func (h *Handler) DeleteClinic(w http.ResponseWriter, r *http.Request) {
	remove(h, w, r, h.api.DeleteClinic)
}

// ==================== 传感器族与大类 ====================

func (h *Handler) ListFamilies(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.api.ListFamilies)
}

func (h *Handler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	create(h, w, r, validation.Family, h.api.CreateFamily)
}

func (h *Handler) UpdateFamily(w http.ResponseWriter, r *http.Request) {
	update(h, w, r, validation.Family, h.api.UpdateFamily)
}

func (h *Handler) DeleteFamily(w http.ResponseWriter, r *http.Request) {
	remove(h, w, r, h.api.DeleteFamily)
}

func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.api.ListTypes)
}

func (h *Handler) CreateType(w http.ResponseWriter, r *http.Request) {
	create(h, w, r, validation.Type, h.api.CreateType)
}

func (h *Handler) UpdateType(w http.ResponseWriter, r *http.Request) {
	update(h, w, r, validation.Type, h.api.UpdateType)
}

func (h *Handler) DeleteType(w http.ResponseWriter, r *http.Request) {
	remove(h, w, r, h.api.DeleteType)
}

// ==================== 用户管理 ====================

// ListUsers 获取所有用户
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	list(h, w, r, h.api.ListUsers)
}

// CreateUser 创建用户，密码必填
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	create(h, w, r, func(in *models.UserInput) error { return validation.User(in, true) }, h.api.CreateUser)
}

// UpdateUser 更新用户，密码为空表示不修改
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	update(h, w, r, func(in *models.UserInput) error { return validation.User(in, false) }, h.api.UpdateUser)
}

// DeleteUser 删除用户；不能删除自己
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if id, err := pathID(r, "id"); err == nil && id == sessionOf(r).UserID {
		WriteError(w, badRequest("Cannot delete the current user"))
		return
	}
	remove(h, w, r, h.api.DeleteUser)
}
