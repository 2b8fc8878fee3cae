package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/circuit"
	apperrors "github.com/gonglijing/clinisense/internal/errors"
)

// Options 客户端配置
type Options struct {
	BaseURL string
	Timeout time.Duration
	Breaker *circuit.CircuitBreaker
	Logger  *zap.Logger
}

// Client 传感器 REST 接口客户端。每个调用都显式携带会话 token。
// 失败不自动重试：网络错误原样上报，由调用方决定是否重新拉取。
type Client struct {
	http    *resty.Client
	breaker *circuit.CircuitBreaker
	log     *zap.Logger
}

// New 创建客户端
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuit.NewCircuitBreaker(&circuit.Config{Name: "upstream", IsFailure: IsTransportFailure, Logger: log})
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, breaker: breaker, log: log}
}

// Breaker 供健康检查与指标使用
func (c *Client) Breaker() *circuit.CircuitBreaker {
	return c.breaker
}

// IsTransportFailure 网络错误与上游 5xx 计入熔断；调用方取消或超时不计入
func IsTransportFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	appErr, ok := apperrors.As(err)
	if !ok {
		return true
	}
	switch appErr.Code {
	case apperrors.ErrCodeNetwork:
		return true
	case apperrors.ErrCodeOperationFailed:
		return appErr.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

type call struct {
	method string
	path   string
	token  string
	query  url.Values
	body   interface{}
}

// do 执行请求并把响应体（去掉 data 包装后）返回
func (c *Client) do(ctx context.Context, req call) (json.RawMessage, error) {
	var payload json.RawMessage
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		r := c.http.R().SetContext(ctx)
		if req.token != "" {
			r.SetAuthToken(req.token)
		}
		if req.query != nil {
			r.SetQueryParamsFromValues(req.query)
		}
		if req.body != nil {
			r.SetBody(req.body)
		}

		start := time.Now()
		resp, err := r.Execute(req.method, req.path)
		if err != nil && ctx.Err() != nil {
			c.log.Debug("upstream request abandoned",
				zap.String("method", req.method),
				zap.String("path", req.path),
				zap.Error(ctx.Err()),
			)
			return apperrors.NewErrorWithErr(apperrors.ErrCodeNetwork, "Upstream request cancelled", ctx.Err())
		}
		if err != nil {
			c.log.Warn("upstream request failed",
				zap.String("method", req.method),
				zap.String("path", req.path),
				zap.Error(err),
			)
			return apperrors.NewNetworkError(err)
		}
		c.log.Debug("upstream request",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
		)
		if resp.IsError() {
			return statusError(resp.StatusCode(), resp.Body())
		}
		payload = unwrapData(resp.Body())
		return nil
	})
	if err != nil {
		var openErr *circuit.CircuitOpenError
		if errors.As(err, &openErr) {
			return nil, apperrors.NewNetworkError(openErr)
		}
		return nil, err
	}
	return payload, nil
}

// errorBody 上游错误响应，422 时 errors 为字段错误表
type errorBody struct {
	Message string                     `json:"message"`
	Error   string                     `json:"error"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

func statusError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}

	switch status {
	case http.StatusUnprocessableEntity:
		fields := apperrors.FieldErrors{}
		for field, raw := range eb.Errors {
			var list []string
			if err := json.Unmarshal(raw, &list); err == nil {
				for _, m := range list {
					fields.Add(field, m)
				}
				continue
			}
			var single string
			if err := json.Unmarshal(raw, &single); err == nil {
				fields.Add(field, single)
			}
		}
		appErr := apperrors.NewValidationError(fields)
		appErr.Status = status
		if msg != "" {
			appErr.Details = msg
		}
		return appErr
	case http.StatusUnauthorized:
		return &apperrors.AppError{Code: apperrors.ErrCodeUnauthorized, Message: "Unauthorized", Details: msg, Status: status}
	case http.StatusForbidden:
		return &apperrors.AppError{Code: apperrors.ErrCodeForbidden, Message: "Forbidden", Details: msg, Status: status}
	case http.StatusNotFound:
		return &apperrors.AppError{Code: apperrors.ErrCodeNotFound, Message: "Resource not found", Details: msg, Status: status}
	default:
		if msg == "" {
			msg = fmt.Sprintf("upstream returned %d", status)
		}
		return apperrors.NewOperationFailed(status, msg)
	}
}

// unwrapData 兼容 {"data": ...} 包装与裸 JSON
func unwrapData(body []byte) json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return json.RawMessage(trimmed)
	}
	if data, ok := env["data"]; ok {
		return data
	}
	return json.RawMessage(trimmed)
}

func decodeInto(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeOperationFailed,
			Message: "Operation failed",
			Details: "invalid upstream response",
			Err:     err,
		}
	}
	return nil
}

// getJSON GET 并解码为 T
func getJSON[T any](ctx context.Context, c *Client, token, path string, query url.Values) (T, error) {
	var out T
	raw, err := c.do(ctx, call{method: http.MethodGet, path: path, token: token, query: query})
	if err != nil {
		return out, err
	}
	err = decodeInto(raw, &out)
	return out, err
}

// sendJSON POST/PUT/PATCH 并解码为 T
func sendJSON[T any](ctx context.Context, c *Client, token, method, path string, body interface{}) (T, error) {
	var out T
	raw, err := c.do(ctx, call{method: method, path: path, token: token, body: body})
	if err != nil {
		return out, err
	}
	err = decodeInto(raw, &out)
	return out, err
}

func (c *Client) remove(ctx context.Context, token, path string) error {
	_, err := c.do(ctx, call{method: http.MethodDelete, path: path, token: token})
	return err
}

func idPath(prefix string, id fmt.Stringer, suffix ...string) string {
	p := prefix + "/" + url.PathEscape(id.String())
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}
