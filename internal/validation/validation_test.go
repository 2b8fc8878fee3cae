package validation

import (
	"testing"

	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
)

func fieldsOf(t *testing.T, err error) apperrors.FieldErrors {
	t.Helper()
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code != apperrors.ErrCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	return appErr.Fields
}

func ptr(v float64) *float64 { return &v }

func TestSensor(t *testing.T) {
	valid := models.SensorInput{
		Matricule:  " TMP-1 ",
		FamilleID:  "3",
		ServiceID:  "9",
		SeuilMin:   ptr(18),
		SeuilMax:   ptr(25),
		AdresseIP:  "192.168.1.20",
		AdresseMAC: "AA:BB:CC:DD:EE:0F",
	}
	in := valid
	if err := Sensor(&in); err != nil {
		t.Fatalf("valid sensor rejected: %v", err)
	}
	if in.Matricule != "TMP-1" {
		t.Fatalf("matricule not trimmed: %q", in.Matricule)
	}

	tests := []struct {
		name  string
		edit  func(*models.SensorInput)
		field string
	}{
		{"missing matricule", func(s *models.SensorInput) { s.Matricule = "" }, "matricule"},
		{"missing family", func(s *models.SensorInput) { s.FamilleID = "" }, "famille_id"},
		{"missing service", func(s *models.SensorInput) { s.ServiceID = "" }, "service_id"},
		{"bad ip", func(s *models.SensorInput) { s.AdresseIP = "300.1.1.1" }, "adresse_ip"},
		{"ipv6 rejected", func(s *models.SensorInput) { s.AdresseIP = "::1" }, "adresse_ip"},
		{"bad mac", func(s *models.SensorInput) { s.AdresseMAC = "AA:BB:CC" }, "adresse_mac"},
		{"min above max", func(s *models.SensorInput) { s.SeuilMin = ptr(30) }, "seuil_min"},
		{"bad date", func(s *models.SensorInput) { s.DateInstallation = "demain" }, "date_installation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.edit(&in)
			fields := fieldsOf(t, Sensor(&in))
			if len(fields[tt.field]) == 0 {
				t.Fatalf("expected error on %s, got %v", tt.field, fields)
			}
		})
	}
}

func TestSensor_EqualThresholdsAllowed(t *testing.T) {
	in := models.SensorInput{Matricule: "X", FamilleID: "1", ServiceID: "1", SeuilMin: ptr(5), SeuilMax: ptr(5)}
	if err := Sensor(&in); err != nil {
		t.Fatalf("min == max must be valid: %v", err)
	}
}

func TestFillDefaultUnit(t *testing.T) {
	in := models.SensorInput{}
	FillDefaultUnit(&in, "Température")
	if in.Unite != "°C" {
		t.Fatalf("unite = %q", in.Unite)
	}
	in.Unite = "°F"
	FillDefaultUnit(&in, "Température")
	if in.Unite != "°F" {
		t.Fatalf("explicit unit overwritten: %q", in.Unite)
	}
}

func TestUser(t *testing.T) {
	in := models.UserInput{Nom: "Diaz", Email: "ana@example.org", Password: "longenough", Role: "User"}
	if err := User(&in, true); err != nil {
		t.Fatalf("valid user rejected: %v", err)
	}
	if in.Role != "operateur" || in.Statut != models.UserStatusActive {
		t.Fatalf("normalization failed: %+v", in)
	}

	bad := models.UserInput{Email: "nope", Role: "root", Statut: "banni", Password: "short"}
	fields := fieldsOf(t, User(&bad, false))
	for _, f := range []string{"nom", "email", "role", "statut", "password"} {
		if len(fields[f]) == 0 {
			t.Errorf("expected error on %s", f)
		}
	}

	update := models.UserInput{Nom: "Diaz", Email: "ana@example.org", Role: "admin"}
	if err := User(&update, false); err != nil {
		t.Fatalf("update without password rejected: %v", err)
	}
	create := update
	fields = fieldsOf(t, User(&create, true))
	if len(fields["password"]) == 0 {
		t.Fatalf("password must be required on create")
	}
}

func TestLookupTables(t *testing.T) {
	if err := Clinic(&models.ClinicInput{Nom: "  "}); err == nil {
		t.Fatalf("empty clinic name accepted")
	}
	if err := Family(&models.FamilyInput{Nom: "CO2"}); err == nil {
		t.Fatalf("family without type accepted")
	}
	if err := Type(&models.TypeInput{Nom: "Environnemental"}); err != nil {
		t.Fatalf("valid type rejected: %v", err)
	}
}
