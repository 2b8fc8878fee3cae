package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/cache"
	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
	"github.com/gonglijing/clinisense/internal/upstream"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionRevoked     = errors.New("session revoked")
)

const (
	defaultCookieName = "clinisense_jwt"
	defaultTTL        = 12 * time.Hour
	sessionKeyPrefix  = "session:"
)

// Authenticator 上游登录/登出
type Authenticator interface {
	Login(ctx context.Context, email, password string) (upstream.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// Session 服务端会话，登录时建立、登出时销毁
type Session struct {
	ID            string      `json:"id"`
	UserID        models.ID   `json:"user_id"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	Role          models.Role `json:"role"`
	ClinicID      models.ID   `json:"clinic_id,omitempty"`
	UpstreamToken string      `json:"upstream_token"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

// IsAdmin 只看登录时确定的角色
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role.IsAdmin()
}

// HasRole 角色是否在列表中
func (s *Session) HasRole(roles ...models.Role) bool {
	if s == nil {
		return false
	}
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

// ScopeUserID 非管理员按用户过滤，管理员返回空
func (s *Session) ScopeUserID() models.ID {
	if s == nil || s.IsAdmin() {
		return ""
	}
	return s.UserID
}

// ScopeKey 数据可见范围的缓存键
func (s *Session) ScopeKey() string {
	if id := s.ScopeUserID(); id != "" {
		return "user:" + id.String()
	}
	return "admin"
}

// ServiceSession 使用服务令牌的管理员会话（后台轮询、CLI）
func ServiceSession(token string) *Session {
	return &Session{
		ID:            "service",
		Name:          "service",
		Role:          models.RoleAdmin,
		UpstreamToken: token,
	}
}

// Claims JWT 载荷；上游令牌不进入 JWT
type Claims struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager 管理 JWT 签发与验证以及服务端会话
type JWTManager struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	store      cache.KVStore
	authn      Authenticator
	log        *zap.Logger
	now        func() time.Time
}

type sessionContextKey struct{}

// NewJWTManager 密钥不足 16 字节时改用进程内随机密钥，重启后已签发令牌失效
func NewJWTManager(secretKey []byte, ttl time.Duration, store cache.KVStore, authn Authenticator, log *zap.Logger) *JWTManager {
	if log == nil {
		log = zap.NewNop()
	}
	if len(secretKey) < 16 {
		secretKey = make([]byte, 32)
		if _, err := rand.Read(secretKey); err != nil {
			panic(fmt.Sprintf("auth: generate secret key: %v", err))
		}
		log.Warn("session secret too short, using a random key for this process")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if store == nil {
		store = cache.NewMemoryKVStore()
	}
	return &JWTManager{
		secret:     secretKey,
		cookieName: defaultCookieName,
		ttl:        ttl,
		store:      store,
		authn:      authn,
		log:        log,
		now:        time.Now,
	}
}

// Login 上游认证，建立会话，返回 JWT
func (m *JWTManager) Login(ctx context.Context, w http.ResponseWriter, email, password string) (string, *Session, error) {
	res, err := m.authn.Login(ctx, email, password)
	if err != nil {
		return "", nil, err
	}

	role := models.NormalizeRole(string(res.User.Role))
	if role == "" {
		m.log.Warn("unknown role, falling back to operateur",
			zap.String("user_id", res.User.ID.String()), zap.String("role", string(res.User.Role)))
		role = models.RoleOperateur
	}

	now := m.now()
	session := &Session{
		ID:            uuid.NewString(),
		UserID:        res.User.ID,
		Name:          res.User.DisplayName(),
		Email:         res.User.Email,
		Role:          role,
		UpstreamToken: res.Token,
		ExpiresAt:     now.Add(m.ttl),
	}
	if res.User.ClinicID != nil {
		session.ClinicID = *res.User.ClinicID
	}

	if err := cache.SetJSON(ctx, m.store, sessionKey(session.ID), session, m.ttl); err != nil {
		return "", nil, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "session store unavailable")
	}

	token, err := m.GenerateToken(session)
	if err != nil {
		return "", nil, err
	}
	m.setCookie(w, token)
	m.log.Info("login", zap.String("user_id", session.UserID.String()), zap.String("role", string(role)))
	return token, session, nil
}

// Logout 通知上游，删除会话并清除 Cookie
func (m *JWTManager) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.clearCookie(w)

	session, err := m.GetSession(r)
	if err != nil || session == nil {
		return nil
	}
	if m.authn != nil {
		if err := m.authn.Logout(ctx, session.UpstreamToken); err != nil {
			m.log.Warn("upstream logout failed", zap.String("user_id", session.UserID.String()), zap.Error(err))
		}
	}
	return m.store.Del(ctx, sessionKey(session.ID))
}

// GetSession 获取会话信息（从 Authorization Bearer 或 Cookie）
func (m *JWTManager) GetSession(r *http.Request) (*Session, error) {
	tokenStr := extractToken(r, m.cookieName)
	if tokenStr == "" {
		return nil, nil
	}
	claims, err := m.ParseToken(tokenStr)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := cache.GetJSON(r.Context(), m.store, sessionKey(claims.ID), &session); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrSessionRevoked
		}
		return nil, err
	}
	if session.UserID.String() != claims.Subject {
		return nil, ErrInvalidCredentials
	}
	return &session, nil
}

// RequireAuth 需要认证中间件
func (m *JWTManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := m.GetSession(r)
		if err != nil || session == nil {
			writeError(w, apperrors.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// RequireAdmin 需要管理员权限中间件
func (m *JWTManager) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireRole(models.RoleAdmin)(next)
}

// RequireRole 会话角色必须在 roles 中；上游已由 RequireAuth 放入会话时不再重复校验令牌
func (m *JWTManager) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !SessionFromContext(r.Context()).HasRole(roles...) {
				writeError(w, apperrors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
		authed := m.RequireAuth(check)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SessionFromContext(r.Context()) != nil {
				check.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

// GenerateToken 签发 JWT(HS256)
func (m *JWTManager) GenerateToken(s *Session) (string, error) {
	claims := Claims{
		Name: s.Name,
		Role: s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Subject:   s.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseToken 解析并验证 JWT
func (m *JWTManager) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || claims.ID == "" {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func extractToken(r *http.Request, cookieName string) string {
	// Authorization: Bearer <token>
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	// 浏览器 WebSocket 无法设置请求头
	if isWebSocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (m *JWTManager) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
}

func (m *JWTManager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeError(w http.ResponseWriter, appErr *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code.String(),
	})
}

// WithSession 把会话放入 context
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionContextKey{}).(*Session)
	return s
}
