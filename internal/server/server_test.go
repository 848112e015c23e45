package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geografica/internal/apiclient"
	"geografica/internal/config"
	"geografica/internal/handler"
	"geografica/internal/middleware"
	"geografica/internal/model"
	"geografica/internal/realtime"
	"geografica/internal/service"
	"geografica/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// upstream is a fake of the remote REST API
type upstream struct {
	mu       sync.Mutex
	requests map[string][]byte
	mux      *http.ServeMux
	routes   map[string]http.HandlerFunc
}

func newUpstream() *upstream {
	u := &upstream{requests: make(map[string][]byte), mux: http.NewServeMux(), routes: make(map[string]http.HandlerFunc)}
	// Dispatch "METHOD /path" patterns by hand; method-qualified ServeMux
	// patterns require Go 1.22+.
	u.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		if method == http.MethodHead {
			method = http.MethodGet
		}
		if h, ok := u.routes[method+" "+r.URL.Path]; ok {
			h(w, r)
			return
		}
		for pattern := range u.routes {
			if strings.HasSuffix(pattern, " "+r.URL.Path) {
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}
		}
		http.NotFound(w, r)
	})

	u.handle("POST /auth/login", func(w http.ResponseWriter, body []byte) {
		var req model.LoginRequest
		_ = json.Unmarshal(body, &req)
		if req.Password != "secret1" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, model.AuthResponse{
			AccessToken: "opaque-token",
			User:        model.User{ID: 1, Name: "Ana", Email: req.Email, Type: "madre"},
		})
	})
	u.handle("POST /tutores", func(w http.ResponseWriter, body []byte) {
		var req model.RegisterTutorRequest
		_ = json.Unmarshal(body, &req)
		if req.Email == "taken@example.com" {
			writeJSON(w, http.StatusConflict, map[string]any{"message": "Email already exists"})
			return
		}
		writeJSON(w, http.StatusCreated, model.User{ID: 1, Name: req.Name, Email: req.Email, Type: req.Type})
	})
	u.handle("GET /tutores/1/hijos", func(w http.ResponseWriter, _ []byte) {
		writeJSON(w, http.StatusOK, []model.Child{
			{ID: 5, Name: "Lucas", Email: "lucas@example.com", Linked: true, LinkCode: "ABC123"},
			{ID: 9, Name: "Sofia", Email: "sofia@example.com", LinkCode: "XYZ789"},
		})
	})
	u.handle("PATCH /hijos/5", func(w http.ResponseWriter, _ []byte) {
		writeJSON(w, http.StatusConflict, map[string]any{"message": "El hijo ya está vinculado"})
	})
	u.handle("POST /hijos/5/regenerar-codigo", func(w http.ResponseWriter, _ []byte) {
		writeJSON(w, http.StatusOK, model.LinkCodeResponse{LinkCode: "NEW123"})
	})
	u.handle("GET /zonas-seguras", func(w http.ResponseWriter, _ []byte) {
		writeJSON(w, http.StatusOK, []model.SafeZone{})
	})
	u.handle("POST /zonas-seguras", func(w http.ResponseWriter, body []byte) {
		var req model.CreateSafeZoneRequest
		_ = json.Unmarshal(body, &req)
		writeJSON(w, http.StatusCreated, model.SafeZone{ID: 3, Name: req.Name, Polygon: req.Polygon})
	})
	u.handle("PATCH /zonas-seguras/3", func(w http.ResponseWriter, _ []byte) {
		writeJSON(w, http.StatusOK, model.SafeZone{ID: 3, Name: "Casa"})
	})
	u.handle("GET /hijos/5/registros", func(w http.ResponseWriter, _ []byte) {
		writeJSON(w, http.StatusOK, []model.LocationRecord{})
	})
	return u
}

func (u *upstream) handle(pattern string, fn func(w http.ResponseWriter, body []byte)) {
	u.routes[pattern] = func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		u.mu.Lock()
		u.requests[pattern] = buf.Bytes()
		u.mu.Unlock()
		fn(w, buf.Bytes())
	}
}

func (u *upstream) body(pattern string) []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests[pattern]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	server   *Server
	upstream *upstream
	api      *httptest.Server
	outbox   *service.Outbox
}

func setupServer(t *testing.T, limiter middleware.RateLimiter) *testEnv {
	t.Helper()

	up := newUpstream()
	api := httptest.NewServer(up.mux)
	t.Cleanup(api.Close)

	cfg := config.Default()
	cfg.RateLimit.Limit = 2
	logger := zap.NewNop()

	client := apiclient.New(api.URL, 2*time.Second, logger)
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	auth, err := apiclient.NewAuthClient(testContext(t), client, store, logger)
	require.NoError(t, err)
	t.Cleanup(auth.Close)

	children := apiclient.NewChildClient(client, auth)
	zonesClient := apiclient.NewSafeZoneClient(client)
	records := apiclient.NewHistoryClient(client)
	channel := realtime.NewChannel("ws"+strings.TrimPrefix(api.URL, "http")+"/ws", auth, logger)
	outbox := service.NewOutbox(service.NewMemoryOutboxStore(), records, logger)

	deps := Deps{
		Auth:      auth,
		Children:  children,
		SafeZones: zonesClient,
		History:   service.NewHistoryService(records, logger),
		Outbox:    outbox,
		Channel:   channel,
		Tracker:   service.NewLiveTracker(nil, "test", time.Minute, logger),
		Zones:     service.NewZoneWatcher(zonesClient, logger),
		Hub:       handler.NewWSHub(logger),
		Limiter:   limiter,
	}

	srv := NewServer(cfg, deps, logger)
	srv.Setup()
	return &testEnv{server: srv, upstream: up, api: api, outbox: outbox}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.GetRouter().ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", model.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := setupServer(t, nil)

	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, false, body["live_connected"])
	assert.Equal(t, "disabled", body["redis"])
	assert.Equal(t, "disabled", body["nats"])
	assert.EqualValues(t, 0, body["outbox_pending"])
}

func TestRunAndShutdown(t *testing.T) {
	env := setupServer(t, nil)
	require.NotNil(t, env.server.httpServer)
	assert.Equal(t, ":3000", env.server.httpServer.Addr)
	env.server.httpServer.Addr = "127.0.0.1:0"

	errCh := make(chan error, 1)
	go func() {
		errCh <- env.server.Run()
	}()

	ctx, cancel := context.WithTimeout(testContext(t), 5*time.Second)
	defer cancel()
	env.server.Shutdown(ctx)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupServer(t, nil)

	w := env.do(http.MethodOptions, "/api/children", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := setupServer(t, nil)

	for _, path := range []string{"/api/me", "/api/children", "/api/safe-zones", "/api/live"} {
		w := env.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestLoginFlow(t *testing.T) {
	env := setupServer(t, nil)

	w := env.do(http.MethodPost, "/api/auth/login", model.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Email o contraseña incorrectos", decode(t, w)["error"])

	env.login(t)

	w = env.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "ana@example.com", user["email"])

	w = env.do(http.MethodGet, "/api/children", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var children []model.Child
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &children))
	assert.Len(t, children, 2)

	w = env.do(http.MethodGet, "/api/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state handler.LiveState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.False(t, state.Connected)
	assert.Len(t, state.Children, 2)

	w = env.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/me", nil).Code)
}

func TestRegister(t *testing.T) {
	env := setupServer(t, nil)

	w := env.do(http.MethodPost, "/api/auth/register", model.RegisterTutorRequest{
		Name: "Ana", Email: "taken@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Este email ya está registrado", decode(t, w)["error"])

	w = env.do(http.MethodPost, "/api/auth/register", model.RegisterTutorRequest{
		Name: "Ana", Email: "ana@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var sent model.RegisterTutorRequest
	require.NoError(t, json.Unmarshal(env.upstream.body("POST /tutores"), &sent))
	assert.Equal(t, "padre", sent.Type)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/me", nil).Code)
}

func TestUpdateChild(t *testing.T) {
	env := setupServer(t, nil)
	env.login(t)

	w := env.do(http.MethodPatch, "/api/children/5", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No se detectaron cambios para guardar", decode(t, w)["error"])

	w = env.do(http.MethodPatch, "/api/children/5", map[string]any{"email": "new@example.com"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "No se puede cambiar el email de un hijo ya vinculado", decode(t, w)["error"])

	w = env.do(http.MethodPatch, "/api/children/abc", map[string]any{"nombre": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegenerateCodeUnlinksChild(t *testing.T) {
	env := setupServer(t, nil)
	env.login(t)

	w := env.do(http.MethodPost, "/api/children/5/code", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.EqualValues(t, 5, body["id"])
	assert.Equal(t, "Lucas", body["nombre"])
	assert.Equal(t, "NEW123", body["codigoVinculacion"])
	assert.Equal(t, false, body["vinculado"])
}

func TestCreateSafeZoneFromPoints(t *testing.T) {
	env := setupServer(t, nil)
	env.login(t)

	w := env.do(http.MethodPost, "/api/safe-zones", map[string]any{
		"nombre": "Casa",
		"puntos": []model.Coordinate{
			{Lat: -17.78, Lng: -63.18},
			{Lat: -17.78, Lng: -63.17},
			{Lat: -17.77, Lng: -63.17},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var sent model.CreateSafeZoneRequest
	require.NoError(t, json.Unmarshal(env.upstream.body("POST /zonas-seguras"), &sent))
	ring := sent.Polygon.Coordinates[0]
	require.Len(t, ring, 4)
	assert.Equal(t, ring[0], ring[3])
	assert.Equal(t, []float64{-63.18, -17.78}, ring[0])
	assert.NotNil(t, sent.ChildIDs)
}

func TestUpdateSafeZoneClearsChildren(t *testing.T) {
	env := setupServer(t, nil)
	env.login(t)

	w := env.do(http.MethodPatch, "/api/safe-zones/3", map[string]any{"hijosIds": []int64{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"hijosIds":[]}`, string(env.upstream.body("PATCH /zonas-seguras/3")))
}

func TestHistory(t *testing.T) {
	env := setupServer(t, nil)
	env.login(t)

	w := env.do(http.MethodGet, "/api/children/5/history?range=week", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/children/5/history?range=fortnight", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordQueuedWhileUpstreamDown(t *testing.T) {
	env := setupServer(t, nil)
	env.login(t)
	env.api.Close()

	w := env.do(http.MethodPost, "/api/children/5/history", model.CreateLocationRecordRequest{
		CapturedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Latitude:   -17.78,
		Longitude:  -63.18,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["queued"])

	w = env.do(http.MethodGet, "/health", nil)
	assert.EqualValues(t, 1, decode(t, w)["outbox_pending"])

	w = env.do(http.MethodGet, "/api/children/5/history", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestLocateRequiresLiveChannel(t *testing.T) {
	env := setupServer(t, nil)
	env.login(t)

	w := env.do(http.MethodPost, "/api/children/5/locate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPost, "/api/children/5/watch", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state handler.LiveState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, []string{"5"}, state.Rooms)
}

func TestLoginRateLimitCountsFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := setupServer(t, middleware.NewRedisRateLimiter(client, "test"))

	env.login(t)
	env.login(t)

	bad := model.LoginRequest{Email: "ana@example.com", Password: "wrong"}
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/auth/login", bad).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/auth/login", bad).Code)

	w := env.do(http.MethodPost, "/api/auth/login", bad)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

// testContext mirrors testing.T.Context (Go 1.24+) for older toolchains.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
