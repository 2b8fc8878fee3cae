package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// 传感器族名称 -> 默认单位
var defaultUnits = map[string]string{
	"temperature": "°C",
	"température": "°C",
	"humidite":    "%",
	"humidité":    "%",
	"pression":    "hPa",
	"batterie":    "%",
	"co2":         "ppm",
	"luminosite":  "lux",
	"luminosité":  "lux",
}

var foldCase = cases.Fold()

// DefaultUnit 根据族名称返回默认单位，未知族返回空
func DefaultUnit(family string) string {
	key := foldCase.String(strings.TrimSpace(family))
	return defaultUnits[key]
}

// UnitLabel 单位的显示名称
func UnitLabel(unit string) string {
	switch unit {
	case "°C":
		return "degrés Celsius"
	case "°F":
		return "degrés Fahrenheit"
	case "%":
		return "pourcentage"
	case "hPa":
		return "hectopascal"
	case "kPa":
		return "kilopascal"
	case "ppm":
		return "parties par million"
	case "lux":
		return "lux"
	default:
		return cases.Lower(language.French).String(unit)
	}
}

// ConvertUnit 在同一物理量的单位之间换算，不支持的组合返回 false
func ConvertUnit(value float64, from, to string) (float64, bool) {
	if from == to {
		return value, true
	}
	switch {
	case from == "°C" && to == "°F":
		return value*9/5 + 32, true
	case from == "°F" && to == "°C":
		return (value - 32) * 5 / 9, true
	case from == "hPa" && to == "kPa":
		return value / 10, true
	case from == "kPa" && to == "hPa":
		return value * 10, true
	}
	return 0, false
}
