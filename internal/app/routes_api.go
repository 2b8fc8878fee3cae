package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gonglijing/clinisense/internal/auth"
	"github.com/gonglijing/clinisense/internal/handlers"
	"github.com/gonglijing/clinisense/internal/models"
)

func registerAPIRoutes(r *mux.Router, h *handlers.Handler, authManager *auth.JWTManager) {
	r.HandleFunc("/api/login", h.Login).Methods("POST")
	r.HandleFunc("/api/logout", h.Logout).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authManager.RequireAuth)

	api.HandleFunc("/user", h.CurrentUser).Methods("GET")
	api.HandleFunc("/ws", h.WebSocket).Methods("GET")

	registerDashboardRoutes(api, h)
	registerSensorRoutes(api, h, authManager)
	registerReferenceRoutes(api, h, authManager)
	registerUserRoutes(api, h, authManager)
}

func registerDashboardRoutes(api *mux.Router, h *handlers.Handler) {
	api.HandleFunc("/dashboard/summary", h.Summary).Methods("GET")
	api.HandleFunc("/alerts", h.ListAlerts).Methods("GET")
	api.HandleFunc("/alerts/export.xlsx", h.ExportAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}/history", h.AlertHistory).Methods("GET")
	api.HandleFunc("/alerts/{id}/{action:resolve|ignore}", h.AlertAction).Methods("POST")
}

// 传感器变更：管理员、主管、技术员
func registerSensorRoutes(api *mux.Router, h *handlers.Handler, authManager *auth.JWTManager) {
	editors := authManager.RequireRole(models.RoleAdmin, models.RoleGestionnaire, models.RoleTechnicien)

	api.HandleFunc("/sensors", h.ListSensors).Methods("GET")
	api.HandleFunc("/sensors/export.xlsx", h.ExportSensors).Methods("GET")
	api.Handle("/sensors", editors(http.HandlerFunc(h.CreateSensor))).Methods("POST")
	api.Handle("/sensors/{id}", editors(http.HandlerFunc(h.UpdateSensor))).Methods("PUT")
	api.Handle("/sensors/{id}", editors(http.HandlerFunc(h.DeleteSensor))).Methods("DELETE")
}

// 诊所层级、传感器族与大类：所有登录用户可读，管理员可改
func registerReferenceRoutes(api *mux.Router, h *handlers.Handler, authManager *auth.JWTManager) {
	admin := func(f http.HandlerFunc) http.Handler { return authManager.RequireAdmin(f) }

	api.HandleFunc("/clinics", h.ListClinics).Methods("GET")
	api.Handle("/clinics", admin(h.CreateClinic)).Methods("POST")
	api.Handle("/clinics/{id}", admin(h.UpdateClinic)).Methods("PUT")
	api.Handle("/clinics/{id}", admin(h.DeleteClinic)).Methods("DELETE")
	api.HandleFunc("/clinics/{id}/floors", h.ListFloors).Methods("GET")
	api.HandleFunc("/floors/{id}/services", h.ListServices).Methods("GET")

	api.HandleFunc("/families", h.ListFamilies).Methods("GET")
	api.Handle("/families", admin(h.CreateFamily)).Methods("POST")
	api.Handle("/families/{id}", admin(h.UpdateFamily)).Methods("PUT")
	api.Handle("/families/{id}", admin(h.DeleteFamily)).Methods("DELETE")

	api.HandleFunc("/types", h.ListTypes).Methods("GET")
	api.Handle("/types", admin(h.CreateType)).Methods("POST")
	api.Handle("/types/{id}", admin(h.UpdateType)).Methods("PUT")
	api.Handle("/types/{id}", admin(h.DeleteType)).Methods("DELETE")
}

func registerUserRoutes(api *mux.Router, h *handlers.Handler, authManager *auth.JWTManager) {
	users := api.PathPrefix("/users").Subrouter()
	users.Use(authManager.RequireAdmin)

	users.HandleFunc("", h.ListUsers).Methods("GET")
	users.HandleFunc("", h.CreateUser).Methods("POST")
	users.HandleFunc("/{id}", h.UpdateUser).Methods("PUT")
	users.HandleFunc("/{id}", h.DeleteUser).Methods("DELETE")
}

func registerHealthRoutes(r *mux.Router, h *handlers.Handler) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/ready", h.Readiness).Methods("GET")
	r.HandleFunc("/live", handlers.Liveness).Methods("GET")
	r.HandleFunc("/metrics", h.Metrics).Methods("GET")
}
