package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/auth"
	"github.com/gonglijing/clinisense/internal/circuit"
	"github.com/gonglijing/clinisense/internal/dashboard"
	"github.com/gonglijing/clinisense/internal/upstream"
)

// LiveFeed 浏览器实时推送
type LiveFeed interface {
	ServeWS(w http.ResponseWriter, r *http.Request, scope string) error
	ClientCount() int
}

// Check 健康检查项
type Check func(ctx context.Context) error

// Deps Handler 依赖
type Deps struct {
	Auth      *auth.JWTManager
	Upstream  upstream.Collaborator
	Dashboard *dashboard.Service
	Live      LiveFeed
	Breaker   *circuit.CircuitBreaker
	// Checks 就绪检查，名称 -> 检查函数
	Checks    map[string]Check
	LoginRate int
	Logger    *zap.Logger
}

// Handler Web处理器
type Handler struct {
	auth    *auth.JWTManager
	api     upstream.Collaborator
	dash    *dashboard.Service
	live    LiveFeed
	breaker *circuit.CircuitBreaker
	checks  map[string]Check
	limiter *LoginLimiter
	log     *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		auth:    d.Auth,
		api:     d.Upstream,
		dash:    d.Dashboard,
		live:    d.Live,
		breaker: d.Breaker,
		checks:  d.Checks,
		limiter: NewLoginLimiter(d.LoginRate),
		log:     log.Named("http"),
	}
}

func sessionOf(r *http.Request) *auth.Session {
	return auth.SessionFromContext(r.Context())
}

func scopeOf(r *http.Request) dashboard.Scope {
	return dashboard.ScopeOf(sessionOf(r))
}
