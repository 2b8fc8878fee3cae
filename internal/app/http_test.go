package app

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gonglijing/clinisense/internal/auth"
	"github.com/gonglijing/clinisense/internal/cache"
	"github.com/gonglijing/clinisense/internal/config"
	"github.com/gonglijing/clinisense/internal/dashboard"
	"github.com/gonglijing/clinisense/internal/handlers"
	"github.com/gonglijing/clinisense/internal/live"
)

// fakeUpstream 传感器 REST 接口的最小实现；邮箱前缀即角色
func fakeUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	write := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
	r.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		role := strings.SplitN(req.Email, "@", 2)[0]
		write(w, `{"token":"up-`+role+`","user":{"id":7,"prenom":"Test","nom":"User","email":"`+req.Email+`","role":"`+role+`"}}`)
	}).Methods("POST")
	r.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) { write(w, `{}`) }).Methods("POST")
	r.HandleFunc("/sensors", func(w http.ResponseWriter, r *http.Request) {
		write(w, `{"data":[{"id":1,"matricule":"TMP-1","status":"online","famille_id":3,"service_id":11,
			"seuil_max":25,"derniere_mesure":{"valeur":30}}]}`)
	}).Methods("GET")
	alerts := func(w http.ResponseWriter, r *http.Request) {
		write(w, `[{"id":5,"sensor_id":1,"type":"seuil_max","statut":"actif","valeur":30}]`)
	}
	r.HandleFunc("/alerts", alerts).Methods("GET")
	r.HandleFunc("/users/{id}/alerts", alerts).Methods("GET")
	r.HandleFunc("/clinics", func(w http.ResponseWriter, r *http.Request) {
		write(w, `[{"id":1,"nom":"Clinique A"}]`)
	}).Methods("GET")
	r.HandleFunc("/clinics/1/floors", func(w http.ResponseWriter, r *http.Request) {
		write(w, `[{"id":10,"nom":"RDC"}]`)
	}).Methods("GET")
	r.HandleFunc("/floors/10/services", func(w http.ResponseWriter, r *http.Request) {
		write(w, `[{"id":11,"nom":"Pharmacie"}]`)
	}).Methods("GET")
	r.HandleFunc("/families", func(w http.ResponseWriter, r *http.Request) {
		write(w, `[{"id":3,"nom":"Température"}]`)
	}).Methods("GET")

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type testApp struct {
	server *httptest.Server
	hub    *live.Hub
	dash   *dashboard.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	up := fakeUpstream(t)

	cfg := config.DefaultConfig()
	cfg.APIBaseURL = up.URL
	cfg.AllowedOrigins = "http://dashboard.example.org"
	cfg.HandlerTimeout = 5 * time.Second

	log := zap.NewNop()
	kv := cache.NewMemoryKVStore()
	api, breaker := newUpstream(cfg, log)
	authManager := auth.NewJWTManager([]byte("app-test-secret-key-0123"), time.Hour, kv, api, log)
	dash := dashboard.New(dashboard.Options{Source: api, Cache: kv, TTL: time.Minute, Logger: log})
	hub := live.NewHub(originChecker(cfg.GetAllowedOrigins()), log)
	go hub.Run()
	t.Cleanup(hub.Stop)

	h := handlers.NewHandler(handlers.Deps{
		Auth:      authManager,
		Upstream:  api,
		Dashboard: dash,
		Live:      hub,
		Breaker:   breaker,
		Checks:    map[string]handlers.Check{"cache": func(context.Context) error { return nil }},
		LoginRate: 100,
		Logger:    log,
	})
	srv := httptest.NewServer(buildHandlerChain(cfg, buildRouter(h, authManager), log))
	t.Cleanup(srv.Close)
	return &testApp{server: srv, hub: hub, dash: dash}
}

func (a *testApp) login(t *testing.T, role string) string {
	t.Helper()
	resp, err := http.Post(a.server.URL+"/api/login", "application/json",
		strings.NewReader(`{"email":"`+role+`@example.org","password":"pw"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Data.Token)
	return body.Data.Token
}

func (a *testApp) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_SummaryEndToEnd(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "admin")

	resp := a.do(t, http.MethodGet, "/api/dashboard/summary", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	var body struct {
		Success bool              `json:"success"`
		Data    dashboard.Summary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Data.Sensors.Total)
	assert.Equal(t, 1, body.Data.Alerts.Active)
	require.Len(t, body.Data.Clinics, 1)
	assert.Equal(t, "Clinique A", body.Data.Clinics[0].Name)
}

func TestRouter_RequiresAuth(t *testing.T) {
	a := newTestApp(t)
	for _, path := range []string{"/api/user", "/api/sensors", "/api/alerts", "/api/ws", "/api/users"} {
		resp := a.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	resp := a.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_RolePermissions(t *testing.T) {
	a := newTestApp(t)
	op := a.login(t, "operateur")
	tech := a.login(t, "technicien")

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/clinics", op, "").StatusCode)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/api/clinics", op, `{"nom":"X"}`).StatusCode)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/api/sensors", op, `{"matricule":"X"}`).StatusCode)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/api/users", tech, "").StatusCode)

	// 技术员可以改传感器，校验在上游调用之前
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(t, http.MethodPost, "/api/sensors", tech, `{"matricule":""}`).StatusCode)
}

func TestRouter_UserScopeIsTracked(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "operateur")

	resp := a.do(t, http.MethodGet, "/api/alerts?etat=active", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scopes []string
	for _, s := range a.dash.Scopes() {
		scopes = append(scopes, s.Key)
	}
	assert.Equal(t, []string{"user:7"}, scopes)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/logout", token, "").StatusCode)
	assert.Empty(t, a.dash.Scopes())
}

func TestRouter_AlertActionRouteOnlyKnownActions(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "admin")
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/api/alerts/5/snooze", token, "").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, a.do(t, http.MethodGet, "/api/alerts/5/resolve", token, "").StatusCode)
}

func TestRouter_ServesGzip(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "admin")

	req, err := http.NewRequest(http.MethodGet, a.server.URL+"/api/sensors", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := (&http.Transport{DisableCompression: true}).RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"matricule":"TMP-1"`)
}

func TestRouter_CORS(t *testing.T) {
	a := newTestApp(t)

	req, err := http.NewRequest(http.MethodOptions, a.server.URL+"/api/sensors", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.example.org")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://dashboard.example.org", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRouter_WebSocketReceivesScopedBroadcast(t *testing.T) {
	a := newTestApp(t)
	token := a.login(t, "admin")

	wsURL := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/api/ws?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://dashboard.example.org"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return a.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	a.hub.Broadcast("user:7", dashboard.MessageSummary, map[string]int{"total": 9})
	a.hub.Broadcast("admin", dashboard.MessageSummary, map[string]int{"total": 1})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"summary","payload":{"total":1}}`, string(msg))
}

func TestRequestIDMiddleware_KeepsIncomingID(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
}

func TestTimeoutMiddleware(t *testing.T) {
	var hasDeadline bool
	h := timeoutMiddleware(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sensors", nil))
	assert.True(t, hasDeadline)

	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, hasDeadline)
}

func TestRecoveryReturns500(t *testing.T) {
	cfg := config.DefaultConfig()
	r := mux.NewRouter()
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	buildHandlerChain(cfg, r, zap.NewNop()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://dashboard.example.org"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://bff.local/api/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("")))
	assert.True(t, check(req("http://dashboard.example.org")))
	assert.True(t, check(req("http://bff.local")))
	assert.False(t, check(req("https://evil.example.com")))
	assert.True(t, originChecker([]string{"*"})(req("https://any.example.com")))
}

func TestLoadOrGenerateSecretKey(t *testing.T) {
	keyFile := t.TempDir() + "/config/session_secret.key"

	a := loadOrGenerateSecretKey("", keyFile)
	b := loadOrGenerateSecretKey("", keyFile)
	assert.Len(t, a, 32)
	assert.Equal(t, a, b, "generated key is persisted")

	c := loadOrGenerateSecretKey("configured-secret", keyFile)
	assert.NotEqual(t, a, c)
}
