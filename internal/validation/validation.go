package validation

import (
	"net/netip"
	"regexp"
	"strings"

	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
)

var (
	macPattern   = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// MinPasswordLength 新建用户的最短密码
const MinPasswordLength = 8

const (
	msgRequired = "Ce champ est obligatoire."
	msgIPv4     = "Adresse IPv4 invalide."
	msgMAC      = "Adresse MAC invalide."
	msgEmail    = "Adresse e-mail invalide."
	msgDate     = "Date invalide."
	msgRole     = "Rôle inconnu."
	msgStatut   = "Statut inconnu."
	msgSeuils   = "Le seuil minimum doit être inférieur ou égal au seuil maximum."
	msgPassword = "Le mot de passe doit contenir au moins 8 caractères."
)

func result(f apperrors.FieldErrors) error {
	if f.Empty() {
		return nil
	}
	return apperrors.NewValidationError(f)
}

func required(f apperrors.FieldErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		f.Add(field, msgRequired)
	}
}

// IsIPv4 点分十进制 IPv4
func IsIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

// IsMAC 六组十六进制，分隔符 : 或 -
func IsMAC(s string) bool {
	return macPattern.MatchString(s)
}

// IsEmail 只检查形状
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Sensor 校验并规整传感器请求体
func Sensor(in *models.SensorInput) error {
	f := apperrors.FieldErrors{}

	in.Matricule = strings.TrimSpace(in.Matricule)
	in.AdresseIP = strings.TrimSpace(in.AdresseIP)
	in.AdresseMAC = strings.TrimSpace(in.AdresseMAC)

	required(f, "matricule", in.Matricule)
	required(f, "famille_id", in.FamilleID.String())
	required(f, "service_id", in.ServiceID.String())

	if in.AdresseIP != "" && !IsIPv4(in.AdresseIP) {
		f.Add("adresse_ip", msgIPv4)
	}
	if in.AdresseMAC != "" && !IsMAC(in.AdresseMAC) {
		f.Add("adresse_mac", msgMAC)
	}
	if in.SeuilMin != nil && in.SeuilMax != nil && *in.SeuilMin > *in.SeuilMax {
		f.Add("seuil_min", msgSeuils)
	}
	if in.DateInstallation != "" && models.ParseTimestamp(in.DateInstallation).Time.IsZero() {
		f.Add("date_installation", msgDate)
	}
	return result(f)
}

// FillDefaultUnit 未填写单位时按族名补默认单位
func FillDefaultUnit(in *models.SensorInput, familyName string) {
	if strings.TrimSpace(in.Unite) == "" {
		in.Unite = models.DefaultUnit(familyName)
	}
}

// Clinic 诊所
func Clinic(in *models.ClinicInput) error {
	f := apperrors.FieldErrors{}
	in.Nom = strings.TrimSpace(in.Nom)
	in.Adresse = strings.TrimSpace(in.Adresse)
	required(f, "nom", in.Nom)
	return result(f)
}

// Family 传感器族
func Family(in *models.FamilyInput) error {
	f := apperrors.FieldErrors{}
	in.Nom = strings.TrimSpace(in.Nom)
	required(f, "nom", in.Nom)
	required(f, "type_id", in.TypeID.String())
	return result(f)
}

// Type 传感器大类
func Type(in *models.TypeInput) error {
	f := apperrors.FieldErrors{}
	in.Nom = strings.TrimSpace(in.Nom)
	required(f, "nom", in.Nom)
	return result(f)
}

// User 用户；creating 为 true 时密码必填。角色写回规范值，状态缺省为 actif
func User(in *models.UserInput, creating bool) error {
	f := apperrors.FieldErrors{}

	in.Nom = strings.TrimSpace(in.Nom)
	in.Email = strings.TrimSpace(in.Email)
	required(f, "nom", in.Nom)
	if in.Email == "" {
		f.Add("email", msgRequired)
	} else if !IsEmail(in.Email) {
		f.Add("email", msgEmail)
	}

	switch {
	case creating && in.Password == "":
		f.Add("password", msgRequired)
	case in.Password != "" && len([]rune(in.Password)) < MinPasswordLength:
		f.Add("password", msgPassword)
	}

	if role := models.NormalizeRole(in.Role); role == "" {
		f.Add("role", msgRole)
	} else {
		in.Role = string(role)
	}

	in.Statut = strings.ToLower(strings.TrimSpace(in.Statut))
	if in.Statut == "" {
		in.Statut = models.UserStatusActive
	} else if !models.ValidUserStatus(in.Statut) {
		f.Add("statut", msgStatut)
	}
	return result(f)
}
