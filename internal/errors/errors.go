package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrorCode 错误代码
type ErrorCode int

const (
	ErrCodeSuccess ErrorCode = iota
	ErrCodeBadRequest
	ErrCodeValidation
	ErrCodeUnauthorized
	ErrCodeForbidden
	ErrCodeNotFound
	ErrCodeInvalidTransition
	ErrCodeNetwork
	ErrCodeOperationFailed
	ErrCodeInternalError
	ErrCodeDatabaseError
	ErrCodeRateLimited
)

var codeNames = map[ErrorCode]string{
	ErrCodeSuccess:           "success",
	ErrCodeBadRequest:        "bad_request",
	ErrCodeValidation:        "validation",
	ErrCodeUnauthorized:      "unauthorized",
	ErrCodeForbidden:         "forbidden",
	ErrCodeNotFound:          "not_found",
	ErrCodeInvalidTransition: "invalid_transition",
	ErrCodeNetwork:           "network",
	ErrCodeOperationFailed:   "operation_failed",
	ErrCodeInternalError:     "internal",
	ErrCodeDatabaseError:     "database",
	ErrCodeRateLimited:       "rate_limited",
}

// String 对外输出的错误代码
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "internal"
}

// FieldErrors 字段 -> 错误列表，与上游 422 响应的 errors 结构一致
type FieldErrors map[string][]string

// Add 追加一条字段错误
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Empty 是否没有错误
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Fields 出错字段名（有序）
func (f FieldErrors) Fields() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f FieldErrors) String() string {
	parts := make([]string, 0, len(f))
	for _, name := range f.Fields() {
		parts = append(parts, name+": "+strings.Join(f[name], ", "))
	}
	return strings.Join(parts, "; ")
}

// AppError 应用错误
type AppError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
	Fields  FieldErrors `json:"fields,omitempty"`
	Status  int         `json:"-"` // 上游 HTTP 状态码，0 表示非上游错误
	Err     error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, e.Fields.String())
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeNetwork:
		return http.StatusBadGateway
	case ErrCodeOperationFailed:
		return http.StatusBadGateway
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeDatabaseError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithErr 创建带底层错误的错误
func NewErrorWithErr(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewValidationError 字段校验失败；本地校验与上游 422 使用同一形态
func NewValidationError(fields FieldErrors) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: "Validation failed",
		Fields:  fields,
	}
}

// NewNetworkError 上游不可达或超时
func NewNetworkError(err error) *AppError {
	return &AppError{
		Code:    ErrCodeNetwork,
		Message: "Upstream unreachable",
		Err:     err,
	}
}

// NewOperationFailed 上游返回的其他错误状态统一归为操作失败
func NewOperationFailed(status int, details string) *AppError {
	return &AppError{
		Code:    ErrCodeOperationFailed,
		Message: "Operation failed",
		Details: details,
		Status:  status,
	}
}

// WrapError 包装错误
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		// 已经是AppError，只更新消息
		return &AppError{
			Code:    code,
			Message: message,
			Details: appErr.Details,
			Fields:  appErr.Fields,
			Status:  appErr.Status,
			Err:     appErr,
		}
	}

	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 预定义错误
var (
	ErrNotFound          = NewError(ErrCodeNotFound, "Resource not found")
	ErrUnauthorized      = NewError(ErrCodeUnauthorized, "Unauthorized")
	ErrForbidden         = NewError(ErrCodeForbidden, "Forbidden")
	ErrBadRequest        = NewError(ErrCodeBadRequest, "Bad request")
	ErrValidation        = NewError(ErrCodeValidation, "Validation failed")
	ErrNetwork           = NewError(ErrCodeNetwork, "Upstream unreachable")
	ErrOperationFailed   = NewError(ErrCodeOperationFailed, "Operation failed")
	ErrInvalidTransition = NewError(ErrCodeInvalidTransition, "Invalid alert transition")
	ErrInternalError     = NewError(ErrCodeInternalError, "Internal server error")
	ErrDatabaseError     = NewError(ErrCodeDatabaseError, "Database error")
	ErrRateLimited       = NewError(ErrCodeRateLimited, "Rate limited")
)

// Is 检查错误是否为指定类型
func Is(err error, target *AppError) bool {
	if err == nil || target == nil {
		return false
	}

	for current := err; current != nil; current = errors.Unwrap(current) {
		appErr, ok := current.(*AppError)
		if !ok || appErr == nil {
			continue
		}
		if appErr.Code == target.Code {
			return true
		}
	}
	return false
}

// As 取出错误链上最外层的 AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// CodeOf 错误代码，非 AppError 视为内部错误
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeSuccess
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}
