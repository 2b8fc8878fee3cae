package pipeline

import (
	"math"

	"github.com/gonglijing/clinisense/internal/models"
)

// Hierarchy 诊所→楼层→科室 查找表，用于解析只带 service_id 的传感器
type Hierarchy struct {
	Clinics  []models.Clinic
	Floors   []models.Floor
	Services []models.Service
}

// ClinicSummary 单个诊所的汇总卡片
type ClinicSummary struct {
	ClinicID          models.ID `json:"clinic_id"`
	Name              string    `json:"name"`
	Address           string    `json:"address"`
	SensorCount       int       `json:"sensor_count"`
	OnlineSensorCount int       `json:"online_sensor_count"`
	ActiveAlertCount  int       `json:"active_alert_count"`
}

// AlertCounts 单个传感器的报警计数
type AlertCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// KPIs 报警全局指标
type KPIs struct {
	Total          int `json:"total"`
	Active         int `json:"active"`
	Resolved       int `json:"resolved"`
	Ignored        int `json:"ignored"`
	Critical       int `json:"critical"`
	CriticalActive int `json:"critical_active"`
	ActiveRate     int `json:"active_rate"`
	ResolvedRate   int `json:"resolved_rate"`
	CriticalRate   int `json:"critical_rate"`
}

// SensorKPIs 传感器全局指标
type SensorKPIs struct {
	Total    int `json:"total"`
	Online   int `json:"online"`
	Offline  int `json:"offline"`
	Critical int `json:"critical"`
}

// Engine 对一组传感器与报警做只读聚合
type Engine struct {
	sensors []models.Sensor
	alerts  []models.Alert

	sensorByID    map[models.ID]models.Sensor
	clinics       map[models.ID]models.Clinic
	clinicOrder   []models.ID
	floorClinic   map[models.ID]models.ID
	serviceFloor  map[models.ID]models.ID
	serviceNames  map[models.ID]string
	sensorClinics map[models.ID]models.ID
}

// NewEngine 构建聚合引擎；输入切片不会被修改
func NewEngine(sensors []models.Sensor, alerts []models.Alert, h Hierarchy) *Engine {
	e := &Engine{
		sensors:       sensors,
		alerts:        alerts,
		sensorByID:    make(map[models.ID]models.Sensor, len(sensors)),
		clinics:       make(map[models.ID]models.Clinic, len(h.Clinics)),
		floorClinic:   make(map[models.ID]models.ID, len(h.Floors)),
		serviceFloor:  make(map[models.ID]models.ID, len(h.Services)),
		serviceNames:  make(map[models.ID]string, len(h.Services)),
		sensorClinics: make(map[models.ID]models.ID, len(sensors)),
	}

	for _, c := range h.Clinics {
		e.addClinic(c)
	}
	for _, f := range h.Floors {
		e.addFloor(f)
	}
	for _, s := range h.Services {
		e.addService(s)
	}

	for _, s := range sensors {
		if s == nil {
			continue
		}
		id := s.Core().ID
		if _, dup := e.sensorByID[id]; dup {
			continue
		}
		e.sensorByID[id] = s
		if rich, ok := s.(*models.RichSensor); ok && rich.Service != nil {
			e.addService(*rich.Service)
		}
		if clinicID, ok := e.resolveClinic(s); ok {
			e.sensorClinics[id] = clinicID
		}
	}
	return e
}

func (e *Engine) addClinic(c models.Clinic) {
	if c.ID == "" {
		return
	}
	existing, seen := e.clinics[c.ID]
	if !seen {
		e.clinicOrder = append(e.clinicOrder, c.ID)
		e.clinics[c.ID] = c
		return
	}
	if existing.Nom == "" {
		existing.Nom = c.Nom
	}
	if existing.Adresse == "" {
		existing.Adresse = c.Adresse
	}
	e.clinics[c.ID] = existing
}

func (e *Engine) addFloor(f models.Floor) {
	if f.ID == "" {
		return
	}
	clinicID := f.ClinicID
	if f.Clinique != nil {
		if clinicID == "" {
			clinicID = f.Clinique.ID
		}
		e.addClinic(*f.Clinique)
	}
	if clinicID == "" {
		return
	}
	if _, ok := e.floorClinic[f.ID]; !ok {
		e.floorClinic[f.ID] = clinicID
	}
}

func (e *Engine) addService(s models.Service) {
	if s.ID == "" {
		return
	}
	if s.Nom != "" && e.serviceNames[s.ID] == "" {
		e.serviceNames[s.ID] = s.Nom
	}
	floorID := s.FloorID
	if s.Floor != nil {
		if floorID == "" {
			floorID = s.Floor.ID
		}
		e.addFloor(*s.Floor)
	}
	if floorID == "" {
		return
	}
	if _, ok := e.serviceFloor[s.ID]; !ok {
		e.serviceFloor[s.ID] = floorID
	}
}

// resolveClinic 沿 科室→楼层→诊所 链查找传感器所属诊所
func (e *Engine) resolveClinic(s models.Sensor) (models.ID, bool) {
	serviceID := models.ServiceID(s)
	if serviceID == "" {
		return "", false
	}
	floorID, ok := e.serviceFloor[serviceID]
	if !ok {
		return "", false
	}
	clinicID, ok := e.floorClinic[floorID]
	if !ok {
		return "", false
	}
	return clinicID, true
}

// ClinicOf 传感器所属诊所
func (e *Engine) ClinicOf(sensorID models.ID) (models.Clinic, bool) {
	clinicID, ok := e.sensorClinics[sensorID]
	if !ok {
		return models.Clinic{}, false
	}
	c, ok := e.clinics[clinicID]
	if !ok {
		return models.Clinic{ID: clinicID}, true
	}
	return c, true
}

// ServiceName 科室名称，未知时为空
func (e *Engine) ServiceName(serviceID models.ID) string {
	return e.serviceNames[serviceID]
}

// Sensor 按 ID 查找传感器
func (e *Engine) Sensor(id models.ID) (models.Sensor, bool) {
	s, ok := e.sensorByID[id]
	return s, ok
}

// PerClinicSummary 按诊所汇总传感器数、在线数与活动报警数。
// 无法关联到传感器或诊所的报警直接忽略。
func (e *Engine) PerClinicSummary() []ClinicSummary {
	index := make(map[models.ID]int, len(e.clinicOrder))
	out := make([]ClinicSummary, 0, len(e.clinicOrder))
	for _, id := range e.clinicOrder {
		c := e.clinics[id]
		index[id] = len(out)
		out = append(out, ClinicSummary{ClinicID: id, Name: c.Nom, Address: c.Adresse})
	}

	for _, s := range e.sensors {
		if s == nil {
			continue
		}
		id := s.Core().ID
		if e.sensorByID[id] != s {
			continue
		}
		clinicID, ok := e.sensorClinics[id]
		if !ok {
			continue
		}
		i, ok := index[clinicID]
		if !ok {
			i = len(out)
			index[clinicID] = i
			out = append(out, ClinicSummary{ClinicID: clinicID})
		}
		out[i].SensorCount++
		if ResolveStatus(s) == models.SensorOnline {
			out[i].OnlineSensorCount++
		}
	}

	for _, a := range e.alerts {
		if !IsActiveStatus(a.Statut) {
			continue
		}
		clinicID, ok := e.sensorClinics[a.SensorID]
		if !ok {
			continue
		}
		if i, ok := index[clinicID]; ok {
			out[i].ActiveAlertCount++
		}
	}
	return out
}

// PerSensorAlertCounts 每个传感器的报警总数与活动数；列表中的每个传感器都有条目
func (e *Engine) PerSensorAlertCounts() map[models.ID]AlertCounts {
	out := make(map[models.ID]AlertCounts, len(e.sensorByID))
	for id := range e.sensorByID {
		out[id] = AlertCounts{}
	}
	for _, a := range e.alerts {
		counts, ok := out[a.SensorID]
		if !ok {
			continue
		}
		counts.Total++
		if IsActiveStatus(a.Statut) {
			counts.Active++
		}
		out[a.SensorID] = counts
	}
	return out
}

// GlobalKPIs 报警全局指标
func (e *Engine) GlobalKPIs() KPIs {
	return ComputeKPIs(e.alerts)
}

// SensorKPIs 传感器全局指标
func (e *Engine) SensorKPIs() SensorKPIs {
	var k SensorKPIs
	for _, s := range e.sensorByID {
		k.Total++
		if ResolveStatus(s) == models.SensorOnline {
			k.Online++
		} else {
			k.Offline++
		}
		if IsCritical(s) {
			k.Critical++
		}
	}
	return k
}

// ComputeKPIs 计算报警指标，total 为 0 时所有比率为 0
func ComputeKPIs(alerts []models.Alert) KPIs {
	var k KPIs
	for _, a := range alerts {
		k.Total++
		switch ParseAlertState(a.Statut) {
		case AlertActive:
			k.Active++
		case AlertResolved:
			k.Resolved++
		case AlertIgnored:
			k.Ignored++
		}
		if a.IsCritique() {
			k.Critical++
			if IsActiveStatus(a.Statut) {
				k.CriticalActive++
			}
		}
	}
	k.ActiveRate = Rate(k.Active, k.Total)
	k.ResolvedRate = Rate(k.Resolved, k.Total)
	k.CriticalRate = Rate(k.Critical, k.Total)
	return k
}

// Rate round(100*part/total)，total 为 0 时返回 0
func Rate(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}
