package pipeline

import (
	"strings"

	"github.com/gonglijing/clinisense/internal/models"
)

// ResolveStatus 传感器在线状态。后端给出的 status 直接采用，
// 缺失或无法识别时为 offline；不做本地超时判断。
func ResolveStatus(s models.Sensor) models.SensorStatus {
	if s == nil {
		return models.SensorOffline
	}
	switch strings.ToLower(strings.TrimSpace(s.Core().Status)) {
	case string(models.SensorOnline):
		return models.SensorOnline
	default:
		return models.SensorOffline
	}
}

// IsCritical 最近测量值是否越出 [seuil_min, seuil_max]。
// 缺失的阈值不参与判断，没有测量值时返回 false。与在线状态无关。
func IsCritical(s models.Sensor) bool {
	if s == nil {
		return false
	}
	core := s.Core()
	if core.DerniereMesure == nil {
		return false
	}
	return outOfRange(core.DerniereMesure.Valeur, core.SeuilMin, core.SeuilMax)
}

func outOfRange(value float64, min, max *float64) bool {
	if min != nil && value < *min {
		return true
	}
	if max != nil && value > *max {
		return true
	}
	return false
}
