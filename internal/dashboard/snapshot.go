package dashboard

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gonglijing/clinisense/internal/database"
	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
	"github.com/gonglijing/clinisense/internal/pipeline"
)

// 快照分段，对应数据库 snapshots.kind
const (
	SectionSensors   = database.KindSensors
	SectionAlerts    = database.KindAlerts
	SectionHierarchy = database.KindHierarchy
)

// Snapshot 某个可见范围的读模型。每个分段独立拉取，
// 失败的分段退回上一次成功的数据并标记 Stale。
type Snapshot struct {
	Scope     string             `json:"scope"`
	Sensors   models.SensorList  `json:"sensors"`
	Alerts    []models.Alert     `json:"alerts"`
	Hierarchy pipeline.Hierarchy `json:"hierarchy"`
	FetchedAt time.Time          `json:"fetched_at"`
	Stale     bool               `json:"stale"`
	Errors    map[string]string  `json:"errors,omitempty"`

	userScoped bool
	errCodes   map[string]apperrors.ErrorCode
	engineOnce sync.Once
	engine     *pipeline.Engine
}

// Engine 懒加载的聚合引擎，快照只读，可并发使用
func (s *Snapshot) Engine() *pipeline.Engine {
	s.engineOnce.Do(func() {
		s.engine = pipeline.NewEngine(s.Sensors, s.Alerts, s.Hierarchy)
	})
	return s.engine
}

// Error 所有分段错误拼接，无错误时为空
func (s *Snapshot) Error() string {
	if len(s.Errors) == 0 {
		return ""
	}
	sections := make([]string, 0, len(s.Errors))
	for name := range s.Errors {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	parts := make([]string, 0, len(sections))
	for _, name := range sections {
		parts = append(parts, name+": "+s.Errors[name])
	}
	return strings.Join(parts, "; ")
}

// FindAlert 按 ID 查找报警
func (s *Snapshot) FindAlert(id models.ID) (models.Alert, bool) {
	for _, a := range s.Alerts {
		if a.ID == id {
			return a, true
		}
	}
	return models.Alert{}, false
}

// ActiveAlerts 当前处于 actif 的报警
func (s *Snapshot) ActiveAlerts() []models.Alert {
	out := make([]models.Alert, 0)
	for _, a := range s.Alerts {
		if pipeline.IsActiveStatus(a.Statut) {
			out = append(out, a)
		}
	}
	return out
}

// Summary 看板汇总卡片
type Summary struct {
	Clinics   []pipeline.ClinicSummary `json:"clinics"`
	Alerts    pipeline.KPIs            `json:"alerts"`
	Sensors   pipeline.SensorKPIs      `json:"sensors"`
	FetchedAt time.Time                `json:"fetched_at"`
	Stale     bool                     `json:"stale"`
	Error     string                   `json:"error,omitempty"`
	Errors    map[string]string        `json:"errors,omitempty"`
}

// Summary 计算汇总。非管理员范围只保留有传感器的诊所
func (s *Snapshot) Summary() Summary {
	e := s.Engine()
	clinics := e.PerClinicSummary()
	if s.userScoped {
		kept := clinics[:0:0]
		for _, c := range clinics {
			if c.SensorCount > 0 {
				kept = append(kept, c)
			}
		}
		clinics = kept
	}
	return Summary{
		Clinics:   clinics,
		Alerts:    e.GlobalKPIs(),
		Sensors:   e.SensorKPIs(),
		FetchedAt: s.FetchedAt,
		Stale:     s.Stale,
		Error:     s.Error(),
		Errors:    s.Errors,
	}
}
