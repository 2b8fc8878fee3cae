package app

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/auth"
	"github.com/gonglijing/clinisense/internal/config"
	"github.com/gonglijing/clinisense/internal/handlers"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID 当前请求的 ID
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func buildRouter(h *handlers.Handler, authManager *auth.JWTManager) *mux.Router {
	r := mux.NewRouter()
	registerAPIRoutes(r, h, authManager)
	registerHealthRoutes(r, h)
	return r
}

// buildHandlerChain 由外到内：代理头、请求 ID、恢复、日志、CORS、压缩、超时
func buildHandlerChain(cfg *config.Config, router http.Handler, log *zap.Logger) http.Handler {
	var h http.Handler = router
	h = timeoutMiddleware(cfg.HandlerTimeout)(h)
	h = compressMiddleware(h)
	h = corsMiddleware(cfg.GetAllowedOrigins())(h)
	h = requestLoggingMiddleware(log.Named("access"))(h)
	h = gorillaHandlers.RecoveryHandler(
		gorillaHandlers.RecoveryLogger(zap.NewStdLog(log.Named("panic"))),
		gorillaHandlers.PrintRecoveryStack(true),
	)(h)
	h = requestIDMiddleware(h)
	return gorillaHandlers.ProxyHeaders(h)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// requestLoggingMiddleware 记录方法、路径、状态码、字节数、耗时；
// httpsnoop 保留 Hijacker 等接口，WebSocket 升级不受影响
func requestLoggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.RequestURI()),
				zap.Int("status", m.Code),
				zap.Int64("bytes", m.Written),
				zap.Duration("duration", m.Duration),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", RequestID(r.Context())),
			}
			switch {
			case m.Code >= 500:
				log.Warn("request", fields...)
			case r.URL.Path == "/health" || r.URL.Path == "/live" || r.URL.Path == "/ready":
				log.Debug("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}

// corsMiddleware origins 含 "*" 时允许任意来源
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins(origins),
		gorillaHandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", requestIDHeader}),
		gorillaHandlers.ExposedHeaders([]string{requestIDHeader, "Content-Disposition"}),
		gorillaHandlers.AllowCredentials(),
		gorillaHandlers.MaxAge(600),
	)
}

// compressMiddleware gzip/deflate；WebSocket 握手直接放行
func compressMiddleware(next http.Handler) http.Handler {
	compressed := gorillaHandlers.CompressHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocket(r) {
			next.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

// timeoutMiddleware 给请求上下文加截止时间，上游调用随之取消；WebSocket 长连接除外
func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isWebSocket(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// originChecker WebSocket 来源校验：无 Origin、同源或在允许列表中
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if _, ok := allowed[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
