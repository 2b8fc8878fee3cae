package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ID 上游接口返回的标识，可能是数字也可能是字符串，统一按字符串保存
type ID string

// UnmarshalJSON 同时接受 JSON 数字与字符串
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON 纯数字的 ID 按数字输出，保持与上游一致
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string {
	return string(id)
}

// Timestamp 上游时间字段，兼容多种格式；无法解析时保留原文
type Timestamp struct {
	Raw  string
	Time time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp 解析时间字符串
func ParseTimestamp(raw string) Timestamp {
	raw = strings.TrimSpace(raw)
	ts := Timestamp{Raw: raw}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			ts.Time = t
			break
		}
	}
	return ts
}

// NewTimestamp 由 time.Time 构造
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Raw: t.UTC().Format(time.RFC3339), Time: t.UTC()}
}

// IsZero 是否为空值
func (t Timestamp) IsZero() bool {
	return t.Raw == "" && t.Time.IsZero()
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseTimestamp(s)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Raw)
}

// Measure 测量值（只追加，不可变）
type Measure struct {
	ID         ID        `json:"id"`
	SensorID   ID        `json:"sensor_id"`
	Valeur     float64   `json:"valeur"`
	DateMesure Timestamp `json:"date_mesure"`
}

// LatestMeasure 传感器最近一次测量快照
type LatestMeasure struct {
	Valeur     float64   `json:"valeur"`
	DateMesure Timestamp `json:"date_mesure"`
}

// Alert 报警记录，type 与 statut 均为上游自由文本
type Alert struct {
	ID             ID        `json:"id"`
	SensorID       ID        `json:"sensor_id"`
	Type           string    `json:"type"`
	Valeur         float64   `json:"valeur"`
	Statut         string    `json:"statut"`
	DateCreation   Timestamp `json:"date_creation"`
	DateResolution Timestamp `json:"date_resolution"`
	Critique       *bool     `json:"critique,omitempty"`
}

// IsCritique critique 字段缺省视为 false
func (a Alert) IsCritique() bool {
	return a.Critique != nil && *a.Critique
}

// Clinic 诊所
type Clinic struct {
	ID      ID     `json:"id"`
	Nom     string `json:"nom"`
	Adresse string `json:"adresse"`
}

// Floor 楼层，隶属唯一诊所
type Floor struct {
	ID       ID      `json:"id"`
	Nom      string  `json:"nom"`
	ClinicID ID      `json:"clinique_id"`
	Clinique *Clinic `json:"clinique,omitempty"`
}

// Service 科室，隶属唯一楼层
type Service struct {
	ID      ID     `json:"id"`
	Nom     string `json:"nom"`
	FloorID ID     `json:"floor_id"`
	Floor   *Floor `json:"floor,omitempty"`
}

// SensorType 传感器大类（如 Environnemental）
type SensorType struct {
	ID  ID     `json:"id"`
	Nom string `json:"nom"`
}

// Family 传感器族（如 Température），隶属一个大类
type Family struct {
	ID     ID          `json:"id"`
	Nom    string      `json:"nom"`
	TypeID ID          `json:"type_id"`
	Type   *SensorType `json:"type,omitempty"`
}

// Label 返回 "大类/族" 形式的显示名
func (f Family) Label() string {
	if f.Type != nil && f.Type.Nom != "" {
		return f.Type.Nom + "/" + f.Nom
	}
	return f.Nom
}

// User 用户
type User struct {
	ID          ID       `json:"id"`
	Nom         string   `json:"nom"`
	Prenom      string   `json:"prenom"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	Statut      string   `json:"statut"`
	Permissions []string `json:"permissions"`
	ClinicID    *ID      `json:"clinique_id,omitempty"`
}

// DisplayName 显示名
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.Prenom + " " + u.Nom)
	if name == "" {
		return u.Email
	}
	return name
}

// User statuses
const (
	UserStatusActive    = "actif"
	UserStatusInactive  = "inactif"
	UserStatusSuspended = "suspendu"
)

// ValidUserStatus 用户状态枚举校验
func ValidUserStatus(s string) bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}
