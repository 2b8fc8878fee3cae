package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/auth"
	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
)

// ==================== 认证相关 ====================

// SessionUser 对外暴露的会话信息，不含上游令牌
type SessionUser struct {
	ID        models.ID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	IsAdmin   bool        `json:"is_admin"`
	ClinicID  models.ID   `json:"clinique_id,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func sessionUser(s *auth.Session) SessionUser {
	return SessionUser{
		ID:        s.UserID,
		Name:      s.Name,
		Email:     s.Email,
		Role:      s.Role,
		IsAdmin:   s.IsAdmin(),
		ClinicID:  s.ClinicID,
		ExpiresAt: s.ExpiresAt,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  SessionUser `json:"user"`
}

// Login 处理登录
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.limiter.Allow(ip) {
		h.log.Warn("login rate limited", zap.String("ip", ip))
		WriteError(w, apperrors.ErrRateLimited)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		fields := apperrors.FieldErrors{}
		if req.Email == "" {
			fields.Add("email", "L'email est obligatoire")
		}
		if req.Password == "" {
			fields.Add("password", "Le mot de passe est obligatoire")
		}
		WriteError(w, apperrors.NewValidationError(fields))
		return
	}

	token, session, err := h.auth.Login(r.Context(), w, req.Email, req.Password)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	WriteSuccess(w, loginResponse{Token: token, User: sessionUser(session)})
}

// Logout 登出；用户范围不再被后台轮询
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if session, err := h.auth.GetSession(r); err == nil && session != nil && !session.IsAdmin() {
		h.dash.Forget(session.ScopeKey())
	}
	if err := h.auth.Logout(r.Context(), w, r); err != nil {
		h.log.Warn("logout failed", zap.Error(err))
	}
	WriteSuccess(w, nil)
}

// CurrentUser 当前会话用户
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, sessionUser(sessionOf(r)))
}
