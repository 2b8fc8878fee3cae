package models

import (
	"encoding/json"
	"fmt"
)

// SensorStatus 在线状态
type SensorStatus string

const (
	SensorOnline  SensorStatus = "online"
	SensorOffline SensorStatus = "offline"
)

// SensorCore 两种传感器形态共有的字段
type SensorCore struct {
	ID               ID             `json:"id"`
	Matricule        string         `json:"matricule"`
	Unite            string         `json:"unite"`
	SeuilMin         *float64       `json:"seuil_min"`
	SeuilMax         *float64       `json:"seuil_max"`
	AdresseIP        string         `json:"adresse_ip"`
	AdresseMAC       string         `json:"adresse_mac"`
	DateInstallation Timestamp      `json:"date_installation"`
	Status           string         `json:"status,omitempty"`
	DerniereMesure   *LatestMeasure `json:"derniere_mesure,omitempty"`
}

// Sensor 传感器的和类型：RichSensor 或 SimpleSensor。
// 使用方必须对两种形态做完整的 type switch。
type Sensor interface {
	Core() *SensorCore
	isSensor()
}

// RichSensor 带完整族与 科室→楼层→诊所 链的传感器
type RichSensor struct {
	SensorCore
	Famille    Family   `json:"famille"`
	Service    *Service `json:"service,omitempty"`
	ServiceRef ID       `json:"service_id,omitempty"`
}

// SimpleSensor 只有扁平外键的传感器
type SimpleSensor struct {
	SensorCore
	FamilleID  ID     `json:"famille_id"`
	FamilleNom string `json:"famille_nom,omitempty"`
	ServiceID  ID     `json:"service_id"`
}

func (s *RichSensor) Core() *SensorCore   { return &s.SensorCore }
func (s *SimpleSensor) Core() *SensorCore { return &s.SensorCore }
func (*RichSensor) isSensor()             {}
func (*SimpleSensor) isSensor()           {}

// simpleSensorWire SimpleSensor 的上游形态，famille 可能是字符串名称
type simpleSensorWire struct {
	SensorCore
	FamilleID  ID              `json:"famille_id"`
	Famille    json.RawMessage `json:"famille"`
	FamilleNom string          `json:"famille_nom"`
	ServiceID  ID              `json:"service_id"`
}

// DecodeSensor 解码单个传感器：famille 为对象时是 RichSensor，否则是 SimpleSensor
func DecodeSensor(data []byte) (Sensor, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode sensor: %w", err)
	}

	if raw, ok := probe["famille"]; ok && isJSONObject(raw) {
		var rich RichSensor
		if err := json.Unmarshal(data, &rich); err != nil {
			return nil, fmt.Errorf("decode rich sensor: %w", err)
		}
		return &rich, nil
	}

	var wire simpleSensorWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode simple sensor: %w", err)
	}
	simple := &SimpleSensor{
		SensorCore: wire.SensorCore,
		FamilleID:  wire.FamilleID,
		FamilleNom: wire.FamilleNom,
		ServiceID:  wire.ServiceID,
	}
	if len(wire.Famille) > 0 {
		var name string
		if err := json.Unmarshal(wire.Famille, &name); err == nil {
			simple.FamilleNom = name
		}
	}
	return simple, nil
}

// DecodeSensors 解码传感器数组
func DecodeSensors(data []byte) ([]Sensor, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode sensors: %w", err)
	}
	sensors := make([]Sensor, 0, len(raws))
	for i, raw := range raws {
		s, err := DecodeSensor(raw)
		if err != nil {
			return nil, fmt.Errorf("sensor #%d: %w", i, err)
		}
		sensors = append(sensors, s)
	}
	return sensors, nil
}

// SensorList 可直接作为 JSON 字段解码的传感器列表
type SensorList []Sensor

func (l *SensorList) UnmarshalJSON(data []byte) error {
	sensors, err := DecodeSensors(data)
	if err != nil {
		return err
	}
	*l = sensors
	return nil
}

func isJSONObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// FamilyName 传感器族名称
func FamilyName(s Sensor) string {
	switch v := s.(type) {
	case *RichSensor:
		return v.Famille.Nom
	case *SimpleSensor:
		return v.FamilleNom
	default:
		panic(fmt.Sprintf("unknown sensor variant %T", s))
	}
}

// TypeName 传感器大类名称，SimpleSensor 没有大类信息
func TypeName(s Sensor) string {
	switch v := s.(type) {
	case *RichSensor:
		if v.Famille.Type != nil {
			return v.Famille.Type.Nom
		}
		return ""
	case *SimpleSensor:
		return ""
	default:
		panic(fmt.Sprintf("unknown sensor variant %T", s))
	}
}

// ServiceID 传感器所属科室 ID
func ServiceID(s Sensor) ID {
	switch v := s.(type) {
	case *RichSensor:
		if v.Service != nil && v.Service.ID != "" {
			return v.Service.ID
		}
		return v.ServiceRef
	case *SimpleSensor:
		return v.ServiceID
	default:
		panic(fmt.Sprintf("unknown sensor variant %T", s))
	}
}
