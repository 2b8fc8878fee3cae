package dashboard

import (
	"strconv"

	"github.com/gonglijing/clinisense/internal/models"
	"github.com/gonglijing/clinisense/internal/pipeline"
)

// SensorRow 传感器列表行
type SensorRow struct {
	ID         models.ID            `json:"id"`
	Matricule  string               `json:"matricule"`
	Family     string               `json:"famille"`
	Type       string               `json:"type"`
	Unite      string               `json:"unite"`
	UniteLabel string               `json:"unite_label"`
	SeuilMin   *float64             `json:"seuil_min"`
	SeuilMax   *float64             `json:"seuil_max"`
	AdresseIP  string               `json:"adresse_ip"`
	AdresseMAC string               `json:"adresse_mac"`
	ServiceID  models.ID            `json:"service_id"`
	Service    string               `json:"service"`
	ClinicID   models.ID            `json:"clinique_id"`
	Clinic     string               `json:"clinique"`
	Status     models.SensorStatus  `json:"status"`
	Critical   bool                 `json:"critique"`
	Value      *float64             `json:"valeur"`
	MeasuredAt models.Timestamp     `json:"date_mesure"`
	Installed  models.Timestamp     `json:"date_installation"`
	Alerts     pipeline.AlertCounts `json:"alertes"`
}

// AlertRow 报警列表行
type AlertRow struct {
	ID             models.ID              `json:"id"`
	SensorID       models.ID              `json:"sensor_id"`
	Matricule      string                 `json:"matricule"`
	ClinicID       models.ID              `json:"clinique_id"`
	Clinic         string                 `json:"clinique"`
	Type           string                 `json:"type"`
	Category       pipeline.AlertCategory `json:"categorie"`
	State          pipeline.AlertState    `json:"etat"`
	Statut         string                 `json:"statut"`
	Valeur         float64                `json:"valeur"`
	Critique       bool                   `json:"critique"`
	DateCreation   models.Timestamp       `json:"date_creation"`
	DateResolution models.Timestamp       `json:"date_resolution"`
}

// SensorRows 传感器行，顺序与上游列表一致
func (s *Snapshot) SensorRows() []SensorRow {
	e := s.Engine()
	counts := e.PerSensorAlertCounts()
	rows := make([]SensorRow, 0, len(s.Sensors))
	seen := make(map[models.ID]struct{}, len(s.Sensors))
	for _, sensor := range s.Sensors {
		if sensor == nil {
			continue
		}
		core := sensor.Core()
		if _, dup := seen[core.ID]; dup {
			continue
		}
		seen[core.ID] = struct{}{}

		row := SensorRow{
			ID:         core.ID,
			Matricule:  core.Matricule,
			Family:     models.FamilyName(sensor),
			Type:       models.TypeName(sensor),
			Unite:      core.Unite,
			UniteLabel: models.UnitLabel(core.Unite),
			SeuilMin:   core.SeuilMin,
			SeuilMax:   core.SeuilMax,
			AdresseIP:  core.AdresseIP,
			AdresseMAC: core.AdresseMAC,
			ServiceID:  models.ServiceID(sensor),
			Status:     pipeline.ResolveStatus(sensor),
			Critical:   pipeline.IsCritical(sensor),
			Installed:  core.DateInstallation,
			Alerts:     counts[core.ID],
		}
		if m := core.DerniereMesure; m != nil {
			v := m.Valeur
			row.Value = &v
			row.MeasuredAt = m.DateMesure
		}
		row.Service = e.ServiceName(row.ServiceID)
		if c, ok := e.ClinicOf(core.ID); ok {
			row.ClinicID = c.ID
			row.Clinic = c.Nom
		}
		rows = append(rows, row)
	}
	return rows
}

// AlertRows 报警行，带分类、规范状态与所属诊所
func (s *Snapshot) AlertRows() []AlertRow {
	e := s.Engine()
	rows := make([]AlertRow, 0, len(s.Alerts))
	for _, a := range s.Alerts {
		category, state := pipeline.ClassifyAlert(a)
		row := AlertRow{
			ID:             a.ID,
			SensorID:       a.SensorID,
			Type:           a.Type,
			Category:       category,
			State:          state,
			Statut:         a.Statut,
			Valeur:         a.Valeur,
			Critique:       a.IsCritique(),
			DateCreation:   a.DateCreation,
			DateResolution: a.DateResolution,
		}
		if sensor, ok := e.Sensor(a.SensorID); ok {
			row.Matricule = sensor.Core().Matricule
		}
		if c, ok := e.ClinicOf(a.SensorID); ok {
			row.ClinicID = c.ID
			row.Clinic = c.Nom
		}
		rows = append(rows, row)
	}
	return rows
}

func yesNo(b bool) string {
	if b {
		return "oui"
	}
	return "non"
}

func optional(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// SensorFields 传感器列表可查询字段
var SensorFields = pipeline.Fields[SensorRow]{
	"id":          pipeline.TextField(func(r SensorRow) string { return r.ID.String() }).Search(),
	"matricule":   pipeline.TextField(func(r SensorRow) string { return r.Matricule }).Search(),
	"famille":     pipeline.TextField(func(r SensorRow) string { return r.Family }).Search().Filter(),
	"type":        pipeline.TextField(func(r SensorRow) string { return r.Type }).Filter(),
	"clinique":    pipeline.TextField(func(r SensorRow) string { return r.Clinic }).Search().Filter(),
	"service":     pipeline.TextField(func(r SensorRow) string { return r.Service }).Search().Filter(),
	"status":      pipeline.TextField(func(r SensorRow) string { return string(r.Status) }).Filter(),
	"critique":    pipeline.TextField(func(r SensorRow) string { return yesNo(r.Critical) }).Filter(),
	"unite":       pipeline.TextField(func(r SensorRow) string { return r.Unite }).Filter(),
	"adresse_ip":  pipeline.TextField(func(r SensorRow) string { return r.AdresseIP }).Search(),
	"adresse_mac": pipeline.TextField(func(r SensorRow) string { return r.AdresseMAC }).Search(),
	"valeur":      pipeline.NumberField(func(r SensorRow) (float64, bool) { return optional(r.Value) }),
	"seuil_min":   pipeline.NumberField(func(r SensorRow) (float64, bool) { return optional(r.SeuilMin) }),
	"seuil_max":   pipeline.NumberField(func(r SensorRow) (float64, bool) { return optional(r.SeuilMax) }),
	"alertes": pipeline.NumberField(func(r SensorRow) (float64, bool) {
		return float64(r.Alerts.Active), true
	}),
	"date_mesure":       pipeline.DateField(func(r SensorRow) models.Timestamp { return r.MeasuredAt }),
	"date_installation": pipeline.DateField(func(r SensorRow) models.Timestamp { return r.Installed }),
}

// AlertFields 报警列表可查询字段
var AlertFields = pipeline.Fields[AlertRow]{
	"id":        pipeline.TextField(func(r AlertRow) string { return r.ID.String() }).Search(),
	"matricule": pipeline.TextField(func(r AlertRow) string { return r.Matricule }).Search(),
	"type":      pipeline.TextField(func(r AlertRow) string { return r.Type }).Search().Filter(),
	"categorie": pipeline.TextField(func(r AlertRow) string { return string(r.Category) }).Filter(),
	"etat":      pipeline.TextField(func(r AlertRow) string { return string(r.State) }).Filter(),
	"statut":    pipeline.TextField(func(r AlertRow) string { return r.Statut }).Filter(),
	"clinique":  pipeline.TextField(func(r AlertRow) string { return r.Clinic }).Search().Filter(),
	"critique":  pipeline.TextField(func(r AlertRow) string { return yesNo(r.Critique) }).Filter(),
	"sensor_id": pipeline.TextField(func(r AlertRow) string { return r.SensorID.String() }).Filter(),
	"valeur": pipeline.NumberField(func(r AlertRow) (float64, bool) {
		return r.Valeur, true
	}),
	"date_creation":   pipeline.DateField(func(r AlertRow) models.Timestamp { return r.DateCreation }),
	"date_resolution": pipeline.DateField(func(r AlertRow) models.Timestamp { return r.DateResolution }),
}

// FormatValue 导出与日志使用的数值格式
func FormatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
