package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	apperrors "github.com/gonglijing/clinisense/internal/errors"
	"github.com/gonglijing/clinisense/internal/models"
)

// Collaborator 上游传感器 REST 接口
type Collaborator interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (models.User, error)

	ListSensors(ctx context.Context, token string, userID models.ID) ([]models.Sensor, error)
	CreateSensor(ctx context.Context, token string, in models.SensorInput) (models.Sensor, error)
	UpdateSensor(ctx context.Context, token string, id models.ID, in models.SensorInput) (models.Sensor, error)
	DeleteSensor(ctx context.Context, token string, id models.ID) error

	ListAlerts(ctx context.Context, token string, userID models.ID) ([]models.Alert, error)
	UpdateAlertStatus(ctx context.Context, token string, id models.ID, patch models.AlertStatusPatch) (models.Alert, error)

	ListClinics(ctx context.Context, token string) ([]models.Clinic, error)
	CreateClinic(ctx context.Context, token string, in models.ClinicInput) (models.Clinic, error)
	UpdateClinic(ctx context.Context, token string, id models.ID, in models.ClinicInput) (models.Clinic, error)
	DeleteClinic(ctx context.Context, token string, id models.ID) error
	ListFloors(ctx context.Context, token string, clinicID models.ID) ([]models.Floor, error)
	ListServices(ctx context.Context, token string, floorID models.ID) ([]models.Service, error)

	ListFamilies(ctx context.Context, token string) ([]models.Family, error)
	CreateFamily(ctx context.Context, token string, in models.FamilyInput) (models.Family, error)
	UpdateFamily(ctx context.Context, token string, id models.ID, in models.FamilyInput) (models.Family, error)
	DeleteFamily(ctx context.Context, token string, id models.ID) error

	ListTypes(ctx context.Context, token string) ([]models.SensorType, error)
	CreateType(ctx context.Context, token string, in models.TypeInput) (models.SensorType, error)
	UpdateType(ctx context.Context, token string, id models.ID, in models.TypeInput) (models.SensorType, error)
	DeleteType(ctx context.Context, token string, id models.ID) error

	ListUsers(ctx context.Context, token string) ([]models.User, error)
	CreateUser(ctx context.Context, token string, in models.UserInput) (models.User, error)
	UpdateUser(ctx context.Context, token string, id models.ID, in models.UserInput) (models.User, error)
	DeleteUser(ctx context.Context, token string, id models.ID) error
}

var _ Collaborator = (*Client)(nil)

// LoginResult 登录响应
type LoginResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type loginResponse struct {
	Token       string      `json:"token"`
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
}

// Login POST /login
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	resp, err := sendJSON[loginResponse](ctx, c, "", http.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return LoginResult{}, err
	}
	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return LoginResult{}, apperrors.NewOperationFailed(http.StatusOK, "login response carries no token")
	}
	return LoginResult{Token: token, User: resp.User}, nil
}

// Logout POST /logout
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, call{method: http.MethodPost, path: "/logout", token: token})
	return err
}

// CurrentUser GET /user
func (c *Client) CurrentUser(ctx context.Context, token string) (models.User, error) {
	return getJSON[models.User](ctx, c, token, "/user", nil)
}

// ListSensors GET /sensors，userID 非空时按用户可见诊所过滤
func (c *Client) ListSensors(ctx context.Context, token string, userID models.ID) ([]models.Sensor, error) {
	var query url.Values
	if userID != "" {
		query = url.Values{"user": {userID.String()}}
	}
	list, err := getJSON[models.SensorList](ctx, c, token, "/sensors", query)
	return []models.Sensor(list), err
}

func (c *Client) sendSensor(ctx context.Context, token, method, path string, in models.SensorInput) (models.Sensor, error) {
	raw, err := sendJSON[json.RawMessage](ctx, c, token, method, path, in)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	s, err := models.DecodeSensor(raw)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeOperationFailed, "Operation failed")
	}
	return s, nil
}

// CreateSensor POST /sensors
func (c *Client) CreateSensor(ctx context.Context, token string, in models.SensorInput) (models.Sensor, error) {
	return c.sendSensor(ctx, token, http.MethodPost, "/sensors", in)
}

// UpdateSensor PUT /sensors/{id}
func (c *Client) UpdateSensor(ctx context.Context, token string, id models.ID, in models.SensorInput) (models.Sensor, error) {
	return c.sendSensor(ctx, token, http.MethodPut, idPath("/sensors", id), in)
}

// DeleteSensor DELETE /sensors/{id}
func (c *Client) DeleteSensor(ctx context.Context, token string, id models.ID) error {
	return c.remove(ctx, token, idPath("/sensors", id))
}

// ListAlerts GET /alerts 或 GET /users/{id}/alerts
func (c *Client) ListAlerts(ctx context.Context, token string, userID models.ID) ([]models.Alert, error) {
	if userID != "" {
		return getJSON[[]models.Alert](ctx, c, token, idPath("/users", userID, "alerts"), nil)
	}
	return getJSON[[]models.Alert](ctx, c, token, "/alerts", nil)
}

// UpdateAlertStatus PATCH /alerts/{id}
func (c *Client) UpdateAlertStatus(ctx context.Context, token string, id models.ID, patch models.AlertStatusPatch) (models.Alert, error) {
	return sendJSON[models.Alert](ctx, c, token, http.MethodPatch, idPath("/alerts", id), patch)
}

// ListClinics GET /clinics
func (c *Client) ListClinics(ctx context.Context, token string) ([]models.Clinic, error) {
	return getJSON[[]models.Clinic](ctx, c, token, "/clinics", nil)
}

// CreateClinic POST /clinics
func (c *Client) CreateClinic(ctx context.Context, token string, in models.ClinicInput) (models.Clinic, error) {
	return sendJSON[models.Clinic](ctx, c, token, http.MethodPost, "/clinics", in)
}

// UpdateClinic PUT /clinics/{id}
func (c *Client) UpdateClinic(ctx context.Context, token string, id models.ID, in models.ClinicInput) (models.Clinic, error) {
	return sendJSON[models.Clinic](ctx, c, token, http.MethodPut, idPath("/clinics", id), in)
}

// DeleteClinic DELETE /clinics/{id}
func (c *Client) DeleteClinic(ctx context.Context, token string, id models.ID) error {
	return c.remove(ctx, token, idPath("/clinics", id))
}

// ListFloors GET /clinics/{id}/floors
func (c *Client) ListFloors(ctx context.Context, token string, clinicID models.ID) ([]models.Floor, error) {
	floors, err := getJSON[[]models.Floor](ctx, c, token, idPath("/clinics", clinicID, "floors"), nil)
	for i := range floors {
		if floors[i].ClinicID == "" {
			floors[i].ClinicID = clinicID
		}
	}
	return floors, err
}

// ListServices GET /floors/{id}/services
func (c *Client) ListServices(ctx context.Context, token string, floorID models.ID) ([]models.Service, error) {
	services, err := getJSON[[]models.Service](ctx, c, token, idPath("/floors", floorID, "services"), nil)
	for i := range services {
		if services[i].FloorID == "" {
			services[i].FloorID = floorID
		}
	}
	return services, err
}

// ListFamilies GET /families
func (c *Client) ListFamilies(ctx context.Context, token string) ([]models.Family, error) {
	return getJSON[[]models.Family](ctx, c, token, "/families", nil)
}

// CreateFamily POST /families
func (c *Client) CreateFamily(ctx context.Context, token string, in models.FamilyInput) (models.Family, error) {
	return sendJSON[models.Family](ctx, c, token, http.MethodPost, "/families", in)
}

// UpdateFamily PUT /families/{id}
func (c *Client) UpdateFamily(ctx context.Context, token string, id models.ID, in models.FamilyInput) (models.Family, error) {
	return sendJSON[models.Family](ctx, c, token, http.MethodPut, idPath("/families", id), in)
}

// DeleteFamily DELETE /families/{id}
func (c *Client) DeleteFamily(ctx context.Context, token string, id models.ID) error {
	return c.remove(ctx, token, idPath("/families", id))
}

// ListTypes GET /types
func (c *Client) ListTypes(ctx context.Context, token string) ([]models.SensorType, error) {
	return getJSON[[]models.SensorType](ctx, c, token, "/types", nil)
}

// CreateType POST /types
func (c *Client) CreateType(ctx context.Context, token string, in models.TypeInput) (models.SensorType, error) {
	return sendJSON[models.SensorType](ctx, c, token, http.MethodPost, "/types", in)
}

// UpdateType PUT /types/{id}
func (c *Client) UpdateType(ctx context.Context, token string, id models.ID, in models.TypeInput) (models.SensorType, error) {
	return sendJSON[models.SensorType](ctx, c, token, http.MethodPut, idPath("/types", id), in)
}

// DeleteType DELETE /types/{id}
func (c *Client) DeleteType(ctx context.Context, token string, id models.ID) error {
	return c.remove(ctx, token, idPath("/types", id))
}

// ListUsers GET /users
func (c *Client) ListUsers(ctx context.Context, token string) ([]models.User, error) {
	return getJSON[[]models.User](ctx, c, token, "/users", nil)
}

// CreateUser POST /users
func (c *Client) CreateUser(ctx context.Context, token string, in models.UserInput) (models.User, error) {
	return sendJSON[models.User](ctx, c, token, http.MethodPost, "/users", in)
}

// UpdateUser PUT /users/{id}
func (c *Client) UpdateUser(ctx context.Context, token string, id models.ID, in models.UserInput) (models.User, error) {
	return sendJSON[models.User](ctx, c, token, http.MethodPut, idPath("/users", id), in)
}

// DeleteUser DELETE /users/{id}
func (c *Client) DeleteUser(ctx context.Context, token string, id models.ID) error {
	return c.remove(ctx, token, idPath("/users", id))
}
