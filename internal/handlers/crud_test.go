package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonglijing/clinisense/internal/models"
)

func TestCreateSensor_FillsDefaultUnit(t *testing.T) {
	env := newTestEnv(t)
	body := `{"matricule":" TMP-9 ","famille_id":3,"service_id":"s1"}`
	rec := httptest.NewRecorder()
	env.h.CreateSensor(rec, withSession(httptest.NewRequest(http.MethodPost, "/api/sensors", strings.NewReader(body)), adminSession()))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.api.created, 1)
	assert.Equal(t, "TMP-9", env.api.created[0].Matricule)
	assert.Equal(t, "°C", env.api.created[0].Unite)
}

func TestCreateSensor_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	body := `{"matricule":"","adresse_ip":"300.1.1.1","seuil_min":10,"seuil_max":5}`
	rec := httptest.NewRecorder()
	env.h.CreateSensor(rec, withSession(httptest.NewRequest(http.MethodPost, "/api/sensors", strings.NewReader(body)), adminSession()))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeEnvelope(t, rec, nil)
	assert.False(t, resp.Success)
	for _, field := range []string{"matricule", "famille_id", "service_id", "adresse_ip", "seuil_min"} {
		assert.Contains(t, resp.Fields, field)
	}
	assert.Empty(t, env.api.created)
}

func TestCreateClinic_InvalidatesSnapshots(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.h.Summary(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil), adminSession()))
	require.Equal(t, 1, env.api.listCalls)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/clinics", strings.NewReader(`{"nom":" Clinique C "}`))
	env.h.CreateClinic(rec, withSession(req, adminSession()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.api.clinics, 1)
	assert.Equal(t, "Clinique C", env.api.clinics[0].Nom)

	rec = httptest.NewRecorder()
	env.h.Summary(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil), adminSession()))
	assert.Equal(t, 2, env.api.listCalls)
}

func TestCreateClinic_BadBody(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/clinics", strings.NewReader(`{"nom":`))
	env.h.CreateClinic(rec, withSession(req, adminSession()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)

	del := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/users/"+id, nil)
		env.h.DeleteUser(rec, mux.SetURLVars(withSession(req, adminSession()), map[string]string{"id": id}))
		return rec
	}

	rec := del("1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.api.deleted)

	rec = del("5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.ID{"5"}, env.api.deleted)
}

func TestUpdateRequiresID(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/clinics/", strings.NewReader(`{"nom":"x"}`))
	env.h.UpdateClinic(rec, withSession(req, adminSession()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
