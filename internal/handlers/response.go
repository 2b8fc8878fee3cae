package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
)

const maxBodyBytes = 1 << 20

// APIResponse 统一 API 响应格式
type APIResponse struct {
	Success bool                  `json:"success"`
	Data    interface{}           `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
	Code    string                `json:"code,omitempty"`
	Fields  apperrors.FieldErrors `json:"fields,omitempty"`
}

// WriteJSON 统一 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 成功响应
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// WriteCreated 创建成功响应
func WriteCreated(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// WriteError 错误响应；非 AppError 按 500 处理且不外露细节
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.ErrInternalError
	}
	WriteJSON(w, appErr.HTTPStatus(), APIResponse{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code.String(),
		Fields:  appErr.Fields,
	})
}

// writeFailure 记录日志后返回错误
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	switch code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeNotFound, apperrors.ErrCodeForbidden,
		apperrors.ErrCodeUnauthorized, apperrors.ErrCodeInvalidTransition, apperrors.ErrCodeBadRequest:
		h.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("code", code.String()), zap.Error(err))
	default:
		h.log.Warn("request failed", zap.String("path", r.URL.Path), zap.String("code", code.String()), zap.Error(err))
	}
	WriteError(w, err)
}

func badRequest(message string) error {
	return apperrors.NewError(apperrors.ErrCodeBadRequest, message)
}

// decodeJSON 解析 JSON 请求体
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("Empty request body")
		}
		return badRequest("Invalid request body")
	}
	return nil
}

// pathID 从 URL 参数读取 ID
func pathID(r *http.Request, name string) (models.ID, error) {
	raw := mux.Vars(r)[name]
	if raw == "" {
		return "", badRequest("Invalid ID")
	}
	return models.ID(raw), nil
}
