package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/api/tesla"
	"github.com/langchou/teslactl/internal/auth"
	"github.com/langchou/teslactl/internal/config"
	"github.com/langchou/teslactl/internal/models"
	"github.com/langchou/teslactl/internal/service"
	"github.com/langchou/teslactl/internal/state"
	"github.com/langchou/teslactl/pkg/ws"
)

const testVIN = "5YJ3E1EA2KF317000"

type fakeService struct {
	loginURL    string
	loginErr    error
	callbackURI string
	callbackErr error
	tokenErr    error
	settingsErr error
	selected    string
	ran         []tesla.Command
	outcome     service.Outcome
	history     *models.CommandLogPage
	historyErr  error
	limit       int
	offset      int
	stored      bool
}

func (f *fakeService) Login(context.Context) (string, error) { return f.loginURL, f.loginErr }

func (f *fakeService) Callback(_ context.Context, uri string) error {
	f.callbackURI = uri
	return f.callbackErr
}

func (f *fakeService) Refresh(context.Context) (auth.TokenInfo, error) {
	return auth.TokenInfo{LifeRemaining: 100, HasRefreshToken: true}, f.tokenErr
}

func (f *fakeService) TokenStatus(context.Context) (auth.TokenInfo, error) {
	return auth.TokenInfo{LifeRemaining: 42, HasRefreshToken: true}, f.tokenErr
}

func (f *fakeService) Logout(context.Context) error { return nil }

func (f *fakeService) Settings(context.Context) (*service.SettingsView, error) {
	return &service.SettingsView{VIN: testVIN, ClientSecret: "ta-secret.************cdef"}, nil
}

func (f *fakeService) UpdateSettings(_ context.Context, in config.Settings) (*service.SettingsView, error) {
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	return &service.SettingsView{VIN: in.VIN, Valid: true}, nil
}

func (f *fakeService) ListVehicles(context.Context) ([]*models.Vehicle, error) {
	return []*models.Vehicle{{VIN: testVIN, State: "online"}}, nil
}

func (f *fakeService) StoredVehicles(context.Context) ([]*models.Vehicle, error) {
	f.stored = true
	return []*models.Vehicle{}, nil
}

func (f *fakeService) SelectVehicle(_ context.Context, vin string) error {
	if vin != testVIN {
		return fmt.Errorf("%w: %q", service.ErrInvalidVIN, vin)
	}
	f.selected = vin
	return nil
}

func (f *fakeService) LinkState() (*state.Snapshot, error) {
	if f.selected == "" {
		return nil, service.ErrNoVehicleSelected
	}
	return &state.Snapshot{VIN: f.selected, CurrentState: state.StateOnline}, nil
}

func (f *fakeService) LinkStates() map[string]*state.Snapshot {
	states := map[string]*state.Snapshot{}
	if f.selected != "" {
		states[f.selected] = &state.Snapshot{VIN: f.selected, CurrentState: state.StateOnline}
	}
	return states
}

func (f *fakeService) Status() (string, string) { return service.StatusReady, "" }

func (f *fakeService) NeedsReauth() bool { return false }

func (f *fakeService) Run(_ context.Context, cmd tesla.Command) service.Outcome {
	f.ran = append(f.ran, cmd)
	out := f.outcome
	out.Command = cmd
	return out
}

func (f *fakeService) History(_ context.Context, limit, offset int) (*models.CommandLogPage, error) {
	f.limit, f.offset = limit, offset
	return f.history, f.historyErr
}

func setupRouter(t *testing.T, svc *fakeService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(zap.NewNop(), svc, ws.NewHub(zap.NewNop())).RegisterRoutes(r)
	return r
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	r := setupRouter(t, &fakeService{})

	w := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestLogin(t *testing.T) {
	svc := &fakeService{loginURL: "https://auth.tesla.com/oauth2/v3/authorize?client_id=x"}
	r := setupRouter(t, svc)

	w := do(r, http.MethodGet, "/api/auth/login", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, svc.loginURL, data["url"])

	w = do(r, http.MethodGet, "/api/auth/login?redirect=1", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, svc.loginURL, w.Header().Get("Location"))
}

func TestLoginWithoutClientID(t *testing.T) {
	r := setupRouter(t, &fakeService{loginErr: auth.ErrMissingClientID})

	w := do(r, http.MethodGet, "/api/auth/login", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, auth.ErrMissingClientID.Error(), decode(t, w)["error"])
}

func TestCallback(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(t, svc)

	w := do(r, http.MethodGet, "/auth/callback?code=abc&state=xyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/auth/callback?code=abc&state=xyz", svc.callbackURI)

	svc.callbackErr = auth.ErrStateMismatch
	w = do(r, http.MethodGet, "/auth/callback?code=abc&state=bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Authentication failed")
}

func TestTokenStatus(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(t, svc)

	w := do(r, http.MethodGet, "/api/auth/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(42), data["life_remaining"])

	svc.tokenErr = fmt.Errorf("%w: access token is missing", auth.ErrNotAuthenticated)
	w = do(r, http.MethodGet, "/api/auth/status", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSettings(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(t, svc)

	w := do(r, http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "ta-secret.************cdef", data["client_secret"])

	w = do(r, http.MethodPut, "/api/settings", `{"vin":"`+testVIN+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	svc.settingsErr = &service.ValidationError{Fields: map[string]string{"vin": "invalid"}}
	w = do(r, http.MethodPut, "/api/settings", `{"vin":"XXX"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := decode(t, w)["fields"].(map[string]interface{})
	assert.Equal(t, "invalid", fields["vin"])

	w = do(r, http.MethodPut, "/api/settings", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVehicles(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(t, svc)

	w := do(r, http.MethodGet, "/api/vehicles", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = do(r, http.MethodGet, "/api/vehicles?source=stored", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.stored)
}

func TestSelectVehicleAndState(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(t, svc)

	w := do(r, http.MethodGet, "/api/vehicle/state", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/vehicles/select", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/vehicles/select", `{"vin":"NOTAVIN"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/vehicles/select", `{"vin":"`+testVIN+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testVIN, svc.selected)

	w = do(r, http.MethodGet, "/api/vehicle/state", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, service.StatusReady, data["status"])
	link := data["link_state"].(map[string]interface{})
	assert.Equal(t, state.StateOnline, link["state"])

	w = do(r, http.MethodGet, "/api/vehicles/states", "")
	assert.Equal(t, http.StatusOK, w.Code)
	states := decode(t, w)["data"].(map[string]interface{})
	require.Contains(t, states, testVIN)
	assert.Equal(t, state.StateOnline, states[testVIN].(map[string]interface{})["state"])
}

func TestRunCommand(t *testing.T) {
	cases := []struct {
		name    string
		outcome service.Outcome
		want    int
	}{
		{"success", service.Outcome{VIN: testVIN, Success: true, Text: "Doors locked successfully", HTTPStatus: 200}, http.StatusOK},
		{"reauth", service.Outcome{VIN: testVIN, Text: service.TextTokenUnavailable, HTTPStatus: 401, Reauth: true}, http.StatusUnauthorized},
		{"no vehicle", service.Outcome{Text: service.StatusNoVehicleSelected}, http.StatusConflict},
		{"failure", service.Outcome{VIN: testVIN, Text: "Failed to lock doors: HTTP 500", HTTPStatus: 500, Duration: time.Second}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{outcome: tc.outcome}
			r := setupRouter(t, svc)

			w := do(r, http.MethodPost, "/api/commands/lock", "")
			assert.Equal(t, tc.want, w.Code)
			assert.Equal(t, []tesla.Command{tesla.CommandLock}, svc.ran)

			data := decode(t, w)["data"].(map[string]interface{})
			assert.Equal(t, tc.outcome.Text, data["text"])
			assert.Equal(t, "lock", data["command"])
		})
	}
}

func TestRunUnknownCommand(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(t, svc)

	w := do(r, http.MethodPost, "/api/commands/self_destruct", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.ran)
}

func TestListCommands(t *testing.T) {
	r := setupRouter(t, &fakeService{})

	w := do(r, http.MethodGet, "/api/commands", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], len(tesla.Commands()))
}

func TestCommandHistory(t *testing.T) {
	code := 200
	svc := &fakeService{history: &models.CommandLogPage{
		Items: []*models.CommandLog{{ID: 1, VIN: testVIN, Command: "lock", Success: true, HTTPStatus: &code}},
		Total: 21,
	}}
	r := setupRouter(t, svc)

	w := do(r, http.MethodGet, "/api/commands/history?page=2&per_page=10", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, svc.limit)
	assert.Equal(t, 10, svc.offset)

	body := decode(t, w)
	assert.Len(t, body["data"], 1)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(21), pagination["total"])

	w = do(r, http.MethodGet, "/api/commands/history?per_page=1000", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, svc.limit)
	assert.Equal(t, 0, svc.offset)

	svc.historyErr = service.ErrNoVehicleSelected
	w = do(r, http.MethodGet, "/api/commands/history", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}
