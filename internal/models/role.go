package models

import "strings"

// Role 用户角色，登录时由上游用户记录一次性确定
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleGestionnaire Role = "gestionnaire"
	RoleTechnicien   Role = "technicien"
	RoleOperateur    Role = "operateur"
)

// NormalizeRole 归一化角色；旧版前端的 "user" 视为 operateur，未知值返回空
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return RoleAdmin
	case "gestionnaire":
		return RoleGestionnaire
	case "technicien":
		return RoleTechnicien
	case "operateur", "user":
		return RoleOperateur
	default:
		return ""
	}
}

// Valid 是否为已知角色
func (r Role) Valid() bool {
	return NormalizeRole(string(r)) == r && r != ""
}

// IsAdmin 只看显式角色字段
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
