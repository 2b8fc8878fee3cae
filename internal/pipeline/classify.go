package pipeline

import (
	"strings"

	"github.com/gonglijing/clinisense/internal/models"
)

// AlertCategory 报警类型语义分类
type AlertCategory string

const (
	CategoryDisconnection AlertCategory = "disconnection"
	CategoryHighThreshold AlertCategory = "high_threshold"
	CategoryLowThreshold  AlertCategory = "low_threshold"
	CategoryOther         AlertCategory = "other"
)

// 按顺序匹配，先命中者生效
var categoryRules = []struct {
	category AlertCategory
	needles  []string
}{
	{CategoryDisconnection, []string{"deconn", "panne"}},
	{CategoryHighThreshold, []string{"high", "haut", "max"}},
	{CategoryLowThreshold, []string{"lower", "bas", "min"}},
}

// ClassifyType 对自由文本 type 做大小写无关的子串匹配。
// 优先级 Disconnection > HighThreshold > LowThreshold > Other。
func ClassifyType(alertType string) AlertCategory {
	t := strings.ToLower(alertType)
	for _, rule := range categoryRules {
		for _, needle := range rule.needles {
			if strings.Contains(t, needle) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// Alert status wire values
const (
	StatutActif   = "actif"
	StatutInactif = "inactif"
	StatutResolue = "resolue"
	StatutIgnoree = "ignoree"
)

// IsActiveStatus 仅字面量 "actif"
func IsActiveStatus(statut string) bool {
	return statut == StatutActif
}

// IsResolvedStatus "inactif" 或 "resolue"
func IsResolvedStatus(statut string) bool {
	return statut == StatutInactif || statut == StatutResolue
}

// IsIgnoredStatus "ignoree"
func IsIgnoredStatus(statut string) bool {
	return statut == StatutIgnoree
}

// AlertState 规范化后的报警状态
type AlertState string

const (
	AlertActive   AlertState = "active"
	AlertResolved AlertState = "resolved"
	AlertIgnored  AlertState = "ignored"
	AlertUnknown  AlertState = "unknown"
)

// ParseAlertState 将上游 statut 映射到规范状态，其余值为 AlertUnknown
func ParseAlertState(statut string) AlertState {
	switch {
	case IsActiveStatus(statut):
		return AlertActive
	case IsResolvedStatus(statut):
		return AlertResolved
	case IsIgnoredStatus(statut):
		return AlertIgnored
	default:
		return AlertUnknown
	}
}

// WireStatus 规范状态写回上游时使用的 statut
func (s AlertState) WireStatus() string {
	switch s {
	case AlertActive:
		return StatutActif
	case AlertResolved:
		return StatutResolue
	case AlertIgnored:
		return StatutIgnoree
	default:
		return ""
	}
}

// ClassifyAlert 报警分类的便捷入口
func ClassifyAlert(a models.Alert) (AlertCategory, AlertState) {
	return ClassifyType(a.Type), ParseAlertState(a.Statut)
}
