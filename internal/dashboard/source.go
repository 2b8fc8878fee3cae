package dashboard

import (
	"context"

	"github.com/gonglijing/clinisense/internal/auth"
	"github.com/gonglijing/clinisense/internal/models"
)

//go:generate mockgen -destination=mock_source.go -package=dashboard github.com/gonglijing/clinisense/internal/dashboard Source

// Source 看板读取与报警处理所需的上游接口
type Source interface {
	ListSensors(ctx context.Context, token string, userID models.ID) ([]models.Sensor, error)
	ListAlerts(ctx context.Context, token string, userID models.ID) ([]models.Alert, error)
	ListClinics(ctx context.Context, token string) ([]models.Clinic, error)
	ListFloors(ctx context.Context, token string, clinicID models.ID) ([]models.Floor, error)
	ListServices(ctx context.Context, token string, floorID models.ID) ([]models.Service, error)
	UpdateAlertStatus(ctx context.Context, token string, id models.ID, patch models.AlertStatusPatch) (models.Alert, error)
}

// Scope 数据可见范围：管理员看全局，其他角色按用户过滤
type Scope struct {
	Key    string
	UserID models.ID
	Token  string
}

// ScopeOf 由会话得到可见范围
func ScopeOf(s *auth.Session) Scope {
	return Scope{
		Key:    s.ScopeKey(),
		UserID: s.ScopeUserID(),
		Token:  s.UpstreamToken,
	}
}
