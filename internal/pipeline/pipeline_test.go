package pipeline

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/gonglijing/clinisense/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func simpleSensor(id, serviceID, status string) *models.SimpleSensor {
	return &models.SimpleSensor{
		SensorCore: models.SensorCore{ID: models.ID(id), Matricule: "M-" + id, Status: status},
		ServiceID:  models.ID(serviceID),
	}
}

func TestResolveStatus(t *testing.T) {
	tests := []struct {
		name   string
		sensor models.Sensor
		want   models.SensorStatus
	}{
		{name: "nil sensor", sensor: nil, want: models.SensorOffline},
		{name: "no status", sensor: simpleSensor("1", "", ""), want: models.SensorOffline},
		{name: "backend online", sensor: simpleSensor("1", "", "online"), want: models.SensorOnline},
		{name: "backend online uppercase", sensor: simpleSensor("1", "", " ONLINE "), want: models.SensorOnline},
		{name: "backend offline", sensor: simpleSensor("1", "", "offline"), want: models.SensorOffline},
		{name: "unknown status", sensor: simpleSensor("1", "", "maintenance"), want: models.SensorOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveStatus(tt.sensor); got != tt.want {
				t.Fatalf("ResolveStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCriticalityDoesNotAffectStatus(t *testing.T) {
	s := &models.RichSensor{SensorCore: models.SensorCore{
		ID:             "1",
		SeuilMin:       floatPtr(18),
		SeuilMax:       floatPtr(25),
		DerniereMesure: &models.LatestMeasure{Valeur: 30},
	}}
	if ResolveStatus(s) != models.SensorOffline {
		t.Fatalf("status without backend value must default to offline")
	}
	if !IsCritical(s) {
		t.Fatalf("30 outside [18,25] must be critical")
	}

	s.Status = "online"
	if ResolveStatus(s) != models.SensorOnline {
		t.Fatalf("backend status must be used as-is")
	}
}

func TestIsCritical(t *testing.T) {
	tests := []struct {
		name     string
		min, max *float64
		measure  *models.LatestMeasure
		want     bool
	}{
		{name: "no measure", min: floatPtr(0), max: floatPtr(1), want: false},
		{name: "inside", min: floatPtr(18), max: floatPtr(25), measure: &models.LatestMeasure{Valeur: 20}, want: false},
		{name: "on bound", min: floatPtr(18), max: floatPtr(25), measure: &models.LatestMeasure{Valeur: 25}, want: false},
		{name: "below", min: floatPtr(18), max: floatPtr(25), measure: &models.LatestMeasure{Valeur: 10}, want: true},
		{name: "only max", max: floatPtr(5), measure: &models.LatestMeasure{Valeur: 6}, want: true},
		{name: "no bounds", measure: &models.LatestMeasure{Valeur: 1000}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &models.SimpleSensor{SensorCore: models.SensorCore{SeuilMin: tt.min, SeuilMax: tt.max, DerniereMesure: tt.measure}}
			if got := IsCritical(s); got != tt.want {
				t.Fatalf("IsCritical = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyType(t *testing.T) {
	tests := map[string]AlertCategory{
		"deconnexion":      CategoryDisconnection,
		"Panne capteur":    CategoryDisconnection,
		"deconnexion_max":  CategoryDisconnection,
		"seuil_max":        CategoryHighThreshold,
		"HIGH":             CategoryHighThreshold,
		"seuil_haut":       CategoryHighThreshold,
		"max_min":          CategoryHighThreshold,
		"seuil_min":        CategoryLowThreshold,
		"seuil_bas":        CategoryLowThreshold,
		"Lower bound":      CategoryLowThreshold,
		"erreur":           CategoryOther,
		"":                 CategoryOther,
	}
	for in, want := range tests {
		if got := ClassifyType(in); got != want {
			t.Errorf("ClassifyType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		statut   string
		active   bool
		resolved bool
		state    AlertState
	}{
		{statut: "actif", active: true, state: AlertActive},
		{statut: "inactif", resolved: true, state: AlertResolved},
		{statut: "resolue", resolved: true, state: AlertResolved},
		{statut: "ignoree", state: AlertIgnored},
		{statut: "active", state: AlertUnknown},
		{statut: "Actif", state: AlertUnknown},
		{statut: "", state: AlertUnknown},
	}
	for _, tt := range tests {
		if IsActiveStatus(tt.statut) != tt.active {
			t.Errorf("IsActiveStatus(%q) = %v", tt.statut, !tt.active)
		}
		if IsResolvedStatus(tt.statut) != tt.resolved {
			t.Errorf("IsResolvedStatus(%q) = %v", tt.statut, !tt.resolved)
		}
		if got := ParseAlertState(tt.statut); got != tt.state {
			t.Errorf("ParseAlertState(%q) = %q, want %q", tt.statut, got, tt.state)
		}
	}
}

func TestGlobalKPIs_Empty(t *testing.T) {
	got := NewEngine(nil, nil, Hierarchy{}).GlobalKPIs()
	if got != (KPIs{}) {
		t.Fatalf("GlobalKPIs(empty) = %+v, want zero value", got)
	}
}

func TestGlobalKPIs_Scenario(t *testing.T) {
	alerts := []models.Alert{
		{ID: "1", Type: "seuil_max", Statut: "actif"},
		{ID: "2", Type: "deconnexion", Statut: "inactif"},
	}
	got := NewEngine(nil, alerts, Hierarchy{}).GlobalKPIs()
	if got.Total != 2 || got.Active != 1 || got.Resolved != 1 || got.ActiveRate != 50 {
		t.Fatalf("GlobalKPIs = %+v", got)
	}
	if got.ResolvedRate != 50 || got.CriticalRate != 0 {
		t.Fatalf("rates = %+v", got)
	}
}

func TestGlobalKPIs_CriticalAndUnknownStatus(t *testing.T) {
	alerts := []models.Alert{
		{ID: "1", Statut: "actif", Critique: boolPtr(true)},
		{ID: "2", Statut: "resolue", Critique: boolPtr(true)},
		{ID: "3", Statut: "ignoree"},
		{ID: "4", Statut: "en_cours"},
		{ID: "5", Statut: "actif", Critique: boolPtr(false)},
		{ID: "6", Statut: "actif"},
	}
	got := ComputeKPIs(alerts)
	want := KPIs{
		Total: 6, Active: 3, Resolved: 1, Ignored: 1, Critical: 2, CriticalActive: 1,
		ActiveRate: 50, ResolvedRate: 17, CriticalRate: 33,
	}
	if got != want {
		t.Fatalf("ComputeKPIs = %+v, want %+v", got, want)
	}
}

func TestRate(t *testing.T) {
	tests := []struct{ part, total, want int }{
		{0, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13},
		{5, 5, 100},
	}
	for _, tt := range tests {
		if got := Rate(tt.part, tt.total); got != tt.want {
			t.Errorf("Rate(%d,%d) = %d, want %d", tt.part, tt.total, got, tt.want)
		}
	}
}

func testHierarchy() Hierarchy {
	return Hierarchy{
		Clinics: []models.Clinic{
			{ID: "c1", Nom: "Clinique Nord", Adresse: "1 rue Nord"},
			{ID: "c2", Nom: "Clinique Sud", Adresse: "2 rue Sud"},
		},
		Floors: []models.Floor{
			{ID: "f1", ClinicID: "c1"},
			{ID: "f2", ClinicID: "c2"},
		},
		Services: []models.Service{
			{ID: "s1", FloorID: "f1"},
			{ID: "s2", FloorID: "f2"},
		},
	}
}

func TestPerClinicSummary(t *testing.T) {
	richClinic := &models.RichSensor{
		SensorCore: models.SensorCore{ID: "r1", Status: "online"},
		Service: &models.Service{ID: "s9", Floor: &models.Floor{ID: "f9",
			Clinique: &models.Clinic{ID: "c9", Nom: "Clinique Est", Adresse: "9 rue Est"}}},
	}
	sensors := []models.Sensor{
		simpleSensor("1", "s1", "online"),
		simpleSensor("2", "s1", "offline"),
		simpleSensor("3", "s2", ""),
		simpleSensor("4", "unknown-service", "online"),
		richClinic,
	}
	alerts := []models.Alert{
		{ID: "a1", SensorID: "1", Statut: "actif"},
		{ID: "a2", SensorID: "2", Statut: "actif"},
		{ID: "a3", SensorID: "2", Statut: "inactif"},
		{ID: "a4", SensorID: "deleted", Statut: "actif"},
		{ID: "a5", SensorID: "4", Statut: "actif"},
		{ID: "a6", SensorID: "r1", Statut: "actif"},
	}

	got := NewEngine(sensors, alerts, testHierarchy()).PerClinicSummary()
	want := []ClinicSummary{
		{ClinicID: "c1", Name: "Clinique Nord", Address: "1 rue Nord", SensorCount: 2, OnlineSensorCount: 1, ActiveAlertCount: 2},
		{ClinicID: "c2", Name: "Clinique Sud", Address: "2 rue Sud", SensorCount: 1, OnlineSensorCount: 0, ActiveAlertCount: 0},
		{ClinicID: "c9", Name: "Clinique Est", Address: "9 rue Est", SensorCount: 1, OnlineSensorCount: 1, ActiveAlertCount: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PerClinicSummary =\n%+v\nwant\n%+v", got, want)
	}
}

func TestPerSensorAlertCounts(t *testing.T) {
	sensors := []models.Sensor{simpleSensor("1", "s1", ""), simpleSensor("2", "s1", "")}
	alerts := []models.Alert{
		{SensorID: "1", Statut: "actif"},
		{SensorID: "1", Statut: "resolue"},
		{SensorID: "1", Statut: "whatever"},
		{SensorID: "3", Statut: "actif"},
	}
	got := NewEngine(sensors, alerts, Hierarchy{}).PerSensorAlertCounts()
	want := map[models.ID]AlertCounts{
		"1": {Total: 3, Active: 1},
		"2": {},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PerSensorAlertCounts = %+v, want %+v", got, want)
	}
}

func TestEngine_ClinicOf(t *testing.T) {
	e := NewEngine([]models.Sensor{simpleSensor("1", "s2", "")}, nil, testHierarchy())
	c, ok := e.ClinicOf("1")
	if !ok || c.Nom != "Clinique Sud" {
		t.Fatalf("ClinicOf = %+v %v", c, ok)
	}
	if _, ok := e.ClinicOf("404"); ok {
		t.Fatalf("unknown sensor must not resolve")
	}
}

type record struct {
	ID    string
	Nom   string
	Kind  string
	Value *float64
	Date  string
}

func recordFields() Fields[record] {
	return Fields[record]{
		"id":   TextField(func(r record) string { return r.ID }).Search(),
		"nom":  TextField(func(r record) string { return r.Nom }).Search(),
		"kind": TextField(func(r record) string { return r.Kind }).Filter(),
		"value": NumberField(func(r record) (float64, bool) {
			if r.Value == nil {
				return 0, false
			}
			return *r.Value, true
		}),
		"date": DateField(func(r record) models.Timestamp { return models.ParseTimestamp(r.Date) }),
	}
}

func noms(rs []record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Nom
	}
	return out
}

func TestApply_SortText(t *testing.T) {
	records := []record{{ID: "1", Nom: "B"}, {ID: "2", Nom: "A"}, {ID: "3", Nom: "C"}}

	asc := Apply(records, Query{SortKey: "nom", SortDir: "asc"}, recordFields())
	if got := noms(asc.Page); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("asc = %v", got)
	}
	desc := Apply(records, Query{SortKey: "nom", SortDir: "desc"}, recordFields())
	if got := noms(desc.Page); !reflect.DeepEqual(got, []string{"C", "B", "A"}) {
		t.Fatalf("desc = %v", got)
	}
	if got := noms(records); !reflect.DeepEqual(got, []string{"B", "A", "C"}) {
		t.Fatalf("input mutated: %v", got)
	}

	withMissing := append([]record{}, records...)
	withMissing = append(withMissing, record{ID: "4"})
	res := Apply(withMissing, Query{SortKey: "nom"}, recordFields())
	if got := noms(res.Page); !reflect.DeepEqual(got, []string{"", "A", "B", "C"}) {
		t.Fatalf("missing value must sort first ascending: %v", got)
	}
}

func TestApply_SortLocaleAware(t *testing.T) {
	records := []record{{Nom: "zèbre"}, {Nom: "Éclair"}, {Nom: "eau"}, {Nom: "Zoo"}}
	res := Apply(records, Query{SortKey: "nom"}, recordFields())
	want := []string{"eau", "Éclair", "zèbre", "Zoo"}
	if got := noms(res.Page); !reflect.DeepEqual(got, want) {
		t.Fatalf("collated order = %v, want %v", got, want)
	}
}

func TestApply_SortNumberAndDate(t *testing.T) {
	records := []record{
		{Nom: "ten", Value: floatPtr(10), Date: "2024-03-01T00:00:00Z"},
		{Nom: "nine", Value: floatPtr(9), Date: "2024-01-15 08:00:00"},
		{Nom: "none"},
		{Nom: "hundred", Value: floatPtr(100), Date: "2024-02-01"},
	}
	byValue := Apply(records, Query{SortKey: "value"}, recordFields())
	if got := noms(byValue.Page); !reflect.DeepEqual(got, []string{"none", "nine", "ten", "hundred"}) {
		t.Fatalf("numeric order = %v", got)
	}
	byDate := Apply(records, Query{SortKey: "date", SortDir: "desc"}, recordFields())
	if got := noms(byDate.Page); !reflect.DeepEqual(got, []string{"ten", "hundred", "nine", "none"}) {
		t.Fatalf("date order = %v", got)
	}
}

func TestApply_SearchAndFilters(t *testing.T) {
	records := []record{
		{ID: "1", Nom: "Temp Bloc A", Kind: "temperature"},
		{ID: "2", Nom: "Hum Bloc A", Kind: "humidite"},
		{ID: "3", Nom: "Temp Bloc B", Kind: "temperature"},
	}
	fields := recordFields()

	res := Apply(records, Query{Search: "bloc a"}, fields)
	if res.TotalCount != 2 {
		t.Fatalf("search count = %d", res.TotalCount)
	}
	res = Apply(records, Query{Search: "3"}, fields)
	if res.TotalCount != 1 || res.Page[0].ID != "3" {
		t.Fatalf("search by id = %+v", res.Page)
	}
	res = Apply(records, Query{Filters: map[string][]string{"kind": {"temperature"}}}, fields)
	if res.TotalCount != 2 {
		t.Fatalf("filter count = %d", res.TotalCount)
	}
	res = Apply(records, Query{Filters: map[string][]string{"kind": {"all"}}}, fields)
	if res.TotalCount != 3 {
		t.Fatalf("all sentinel must not constrain: %d", res.TotalCount)
	}
	res = Apply(records, Query{Filters: map[string][]string{"kind": {"humidite", "temperature"}}, Search: "bloc b"}, fields)
	if res.TotalCount != 1 {
		t.Fatalf("set membership plus search = %d", res.TotalCount)
	}
	res = Apply(records, Query{Filters: map[string][]string{"nom": {"x"}}}, fields)
	if res.TotalCount != 3 {
		t.Fatalf("non-filterable field must be ignored: %d", res.TotalCount)
	}
}

func TestApply_Paging(t *testing.T) {
	records := make([]record, 25)
	for i := range records {
		records[i] = record{ID: string(rune('a' + i))}
	}
	res := Apply(records, Query{PageSize: 10, PageIndex: 2}, recordFields())
	if res.TotalPages != 3 || len(res.Page) != 5 || res.PageIndex != 2 {
		t.Fatalf("page 2 = %+v", res)
	}

	res = Apply(records[:5], Query{PageSize: 10, PageIndex: 5}, recordFields())
	if res.PageIndex != 0 || res.TotalPages != 1 || len(res.Page) != 5 {
		t.Fatalf("out of range page must clamp to 0: %+v", res)
	}

	res = Apply(nil, Query{}, recordFields())
	if res.TotalPages != 1 || res.PageSize != DefaultPageSize || len(res.Page) != 0 {
		t.Fatalf("empty = %+v", res)
	}
}

func TestApply_Grouping(t *testing.T) {
	records := []record{
		{ID: "1", Nom: "b", Kind: "y"},
		{ID: "2", Nom: "a", Kind: "x"},
		{ID: "3", Nom: "c", Kind: "y"},
		{ID: "4", Nom: "d", Kind: "x"},
	}
	res := Apply(records, Query{GroupBy: "kind", SortKey: "nom", PageSize: 1, PageIndex: 3}, recordFields())
	if !res.Grouped || len(res.Page) != 4 {
		t.Fatalf("grouping must disable paging: %+v", res)
	}
	total := 0
	for _, g := range res.Groups {
		total += g.Count
	}
	if total != 4 || len(res.Groups) != 2 {
		t.Fatalf("groups = %+v", res.Groups)
	}
	if res.Groups[0].Key != "x" || noms(res.Groups[0].Records)[0] != "a" {
		t.Fatalf("groups must follow sorted first appearance: %+v", res.Groups)
	}

	res = Apply(records, Query{GroupBy: "none", PageSize: 2}, recordFields())
	if res.Grouped || len(res.Page) != 2 {
		t.Fatalf("group none must page: %+v", res)
	}
}

func TestApply_Idempotent(t *testing.T) {
	records := []record{
		{ID: "1", Nom: "b", Kind: "y", Value: floatPtr(2)},
		{ID: "2", Nom: "b", Kind: "x", Value: floatPtr(2)},
		{ID: "3", Nom: "a", Kind: "y"},
	}
	q := Query{Search: "", SortKey: "value", SortDir: "desc", PageSize: 2}
	first, _ := json.Marshal(Apply(records, q, recordFields()))
	second, _ := json.Marshal(Apply(records, q, recordFields()))
	if string(first) != string(second) {
		t.Fatalf("non deterministic output:\n%s\n%s", first, second)
	}
	res := Apply(records, q, recordFields())
	if res.Page[0].ID != "1" || res.Page[1].ID != "2" {
		t.Fatalf("stable sort must keep input order for ties: %+v", res.Page)
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from    AlertState
		action  AlertAction
		want    AlertState
		wantErr bool
	}{
		{AlertActive, ActionResolve, AlertResolved, false},
		{AlertActive, ActionIgnore, AlertIgnored, false},
		{AlertResolved, ActionIgnore, AlertResolved, true},
		{AlertIgnored, ActionResolve, AlertIgnored, true},
		{AlertUnknown, ActionResolve, AlertUnknown, true},
		{AlertActive, AlertAction("reopen"), AlertActive, true},
	}
	for _, tt := range tests {
		got, err := Transition(tt.from, tt.action)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Transition(%s,%s) err = %v", tt.from, tt.action, err)
		}
		if got != tt.want {
			t.Fatalf("Transition(%s,%s) = %s, want %s", tt.from, tt.action, got, tt.want)
		}
		if err != nil {
			var te *TransitionError
			if !errors.As(err, &te) {
				t.Fatalf("error type = %T", err)
			}
		}
	}
}

func TestPlanTransition(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	change, err := PlanTransition("actif", ActionResolve, now)
	if err != nil {
		t.Fatalf("PlanTransition: %v", err)
	}
	if change.Statut != "resolue" || !change.DateResolution.Equal(now) || change.To != AlertResolved {
		t.Fatalf("change = %+v", change)
	}
	if _, err := PlanTransition("inactif", ActionIgnore, now); err == nil {
		t.Fatalf("resolved alert must not transition again")
	}
}
