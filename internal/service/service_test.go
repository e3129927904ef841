package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/teslactl/internal/api/tesla"
	"github.com/langchou/teslactl/internal/auth"
	"github.com/langchou/teslactl/internal/config"
	"github.com/langchou/teslactl/internal/models"
	"github.com/langchou/teslactl/internal/repository"
	"github.com/langchou/teslactl/internal/state"
	"github.com/langchou/teslactl/internal/storage"
	"github.com/langchou/teslactl/pkg/ws"
)

const (
	testVIN          = "5YJ3E1EA2KF317000"
	testClientID     = "0f8fad5b-d9cb-469f-a165-70867728950e"
	testClientSecret = "ta-secret.0123456789abcdef"
)

// fakeFleet 模拟 Fleet API 与签名代理
type fakeFleet struct {
	mu            sync.Mutex
	state         string
	commandStatus int
	commands      []string
	wakes         int
}

func (f *fakeFleet) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		prefix := "/api/1/vehicles/" + testVIN
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/1/vehicles":
			_, _ = fmt.Fprintf(w, `{"response":[{"id":11,"vehicle_id":22,"vin":%q,"display_name":"Red","state":%q}],"count":1}`, testVIN, f.state)
		case r.Method == http.MethodGet && r.URL.Path == prefix:
			_, _ = fmt.Fprintf(w, `{"response":{"id":11,"vin":%q,"state":%q}}`, testVIN, f.state)
		case r.Method == http.MethodGet && r.URL.Path == prefix+"/vehicle_data":
			_, _ = fmt.Fprintf(w, `{"response":{"vin":%q,"state":"online","charge_state":{"battery_level":81,"battery_range":200,"timestamp":1700000000000},"vehicle_state":{"locked":true}}}`, testVIN)
		case r.Method == http.MethodPost && r.URL.Path == prefix+"/wake_up":
			f.wakes++
			_, _ = w.Write([]byte(`{"response":{"state":"waking"}}`))
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, prefix+"/command/"):
			f.commands = append(f.commands, strings.TrimPrefix(r.URL.Path, prefix+"/command/"))
			if f.commandStatus != 0 {
				w.WriteHeader(f.commandStatus)
				return
			}
			_, _ = w.Write([]byte(`{"response":{"result":true,"reason":""}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type fakeVehicles struct {
	mu       sync.Mutex
	vehicles map[string]*models.Vehicle
}

func (f *fakeVehicles) Upsert(_ context.Context, v *models.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vehicles == nil {
		f.vehicles = make(map[string]*models.Vehicle)
	}
	cp := *v
	f.vehicles[v.VIN] = &cp
	return nil
}

func (f *fakeVehicles) GetByVIN(_ context.Context, vin string) (*models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[vin]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVehicles) List(_ context.Context) ([]*models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Vehicle, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeVehicles) UpdateState(_ context.Context, vin, st string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[vin]
	if !ok {
		return repository.ErrNotFound
	}
	v.State = st
	return nil
}

func (f *fakeVehicles) get(vin string) *models.Vehicle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vehicles[vin]
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []*models.CommandLog
}

func (f *fakeLogs) Create(_ context.Context, l *models.CommandLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, l)
	return nil
}

func (f *fakeLogs) ListByVIN(_ context.Context, vin string, limit, offset int) ([]*models.CommandLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CommandLog
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].VIN == vin {
			out = append(out, f.entries[i])
		}
	}
	if offset >= len(out) {
		return []*models.CommandLog{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLogs) CountByVIN(_ context.Context, vin string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, e := range f.entries {
		if e.VIN == vin {
			n++
		}
	}
	return n, nil
}

type fakeHub struct {
	mu       sync.Mutex
	messages []string
	statuses []string
}

func (f *fakeHub) BroadcastMessage(msgType string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgType)
	if u, ok := data.(StatusUpdate); ok {
		f.statuses = append(f.statuses, u.Text)
	}
}

func (f *fakeHub) statusTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statuses...)
}

func (f *fakeHub) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func freshToken(t *testing.T) string {
	t.Helper()
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(8 * time.Hour)),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

type testEnv struct {
	svc      *CommandService
	fleet    *fakeFleet
	store    *storage.Memory
	vehicles *fakeVehicles
	logs     *fakeLogs
	hub      *fakeHub
	apiURL   string
}

func newTestEnv(t *testing.T, vehicleState string) *testEnv {
	t.Helper()
	fleet := &fakeFleet{state: vehicleState}
	srv := httptest.NewServer(fleet.handler(t))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		TeslaAuthURL:     "https://auth.tesla.com/oauth2/v3/authorize",
		TeslaRedirectURI: "http://localhost:4000/auth/callback",
		TeslaAPIHost:     srv.URL,
		HTTPTimeout:      5 * time.Second,
		WakeDelay:        time.Millisecond,
		PollInterval:     time.Millisecond,
		WakeMaxAttempts:  3,
	}

	store := storage.NewMemory()
	require.NoError(t, store.Put(context.Background(), map[string]string{
		storage.KeyAccessToken:  freshToken(t),
		storage.KeyRefreshToken: "refresh-token",
		storage.KeyClientID:     testClientID,
		storage.KeyClientSecret: testClientSecret,
	}))

	authMgr := auth.NewManager(auth.Config{
		AuthURL:     cfg.TeslaAuthURL,
		TokenURL:    srv.URL + "/oauth2/v3/token",
		RedirectURI: cfg.TeslaRedirectURI,
		Scopes:      []string{"openid", "offline_access"},
	}, store, zap.NewNop())

	env := &testEnv{
		fleet:    fleet,
		store:    store,
		vehicles: &fakeVehicles{},
		logs:     &fakeLogs{},
		hub:      &fakeHub{},
		apiURL:   srv.URL,
	}
	env.svc = NewCommandService(cfg, zap.NewNop(), store, authMgr,
		WithVehicleStore(env.vehicles),
		WithCommandLog(env.logs),
		WithBroadcaster(env.hub),
	)
	return env
}

func (e *testEnv) selectVehicle(t *testing.T) {
	t.Helper()
	require.NoError(t, e.svc.SelectVehicle(context.Background(), testVIN))
}

func TestNewCommandServiceIsReady(t *testing.T) {
	env := newTestEnv(t, "online")

	status, payload := env.svc.Status()
	assert.Equal(t, StatusReady, status)
	assert.Empty(t, payload)
	assert.Nil(t, env.svc.Session())

	_, err := env.svc.LinkState()
	assert.ErrorIs(t, err, ErrNoVehicleSelected)
}

func TestRunWithoutVehicle(t *testing.T) {
	env := newTestEnv(t, "online")

	out := env.svc.Run(context.Background(), tesla.CommandLock)
	assert.False(t, out.Success)
	assert.Equal(t, StatusNoVehicleSelected, out.Text)
	assert.Empty(t, env.logs.entries)
	assert.Empty(t, env.fleet.commands)
}

func TestRunUnknownCommand(t *testing.T) {
	env := newTestEnv(t, "online")
	env.selectVehicle(t)

	out := env.svc.Run(context.Background(), tesla.Command("self_destruct"))
	assert.False(t, out.Success)
	assert.Equal(t, "Unknown command: self_destruct", out.Text)
}

func TestSelectVehicleRejectsInvalidVIN(t *testing.T) {
	env := newTestEnv(t, "online")

	err := env.svc.SelectVehicle(context.Background(), "5YJ3E1EA3KF317000")
	assert.ErrorIs(t, err, ErrInvalidVIN)
	assert.Nil(t, env.svc.Session())

	vin, err := env.store.Get(context.Background(), storage.KeyVIN)
	require.NoError(t, err)
	assert.Empty(t, vin)
}

func TestInitRestoresStoredVehicle(t *testing.T) {
	env := newTestEnv(t, "online")
	ctx := context.Background()

	require.NoError(t, env.svc.Init(ctx))
	assert.Nil(t, env.svc.Session())

	require.NoError(t, env.store.Put(ctx, map[string]string{storage.KeyVIN: testVIN}))
	require.NoError(t, env.svc.Init(ctx))
	require.NotNil(t, env.svc.Session())
	assert.Equal(t, testVIN, env.svc.Session().VIN())
	assert.Equal(t, env.apiURL, env.svc.Session().BaseURL())
}

func TestRunLockOnline(t *testing.T) {
	env := newTestEnv(t, "online")
	env.selectVehicle(t)

	out := env.svc.Run(context.Background(), tesla.CommandLock)
	assert.True(t, out.Success)
	assert.Equal(t, "Doors locked successfully", out.Text)
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Equal(t, testVIN, out.VIN)
	assert.Empty(t, out.Payload)
	assert.Equal(t, []string{"door_lock"}, env.fleet.commands)
	assert.Zero(t, env.fleet.wakes)

	status, _ := env.svc.Status()
	assert.Equal(t, "Doors locked successfully", status)
	assert.Equal(t, []string{"Locking doors...", "Doors locked successfully"}, env.hub.statusTexts())

	require.Len(t, env.logs.entries, 1)
	entry := env.logs.entries[0]
	assert.Equal(t, "lock", entry.Command)
	assert.True(t, entry.Success)
	require.NotNil(t, entry.HTTPStatus)
	assert.Equal(t, http.StatusOK, *entry.HTTPStatus)

	link, err := env.svc.LinkState()
	require.NoError(t, err)
	assert.Equal(t, state.StateOnline, link.CurrentState)
}

func TestRunVehicleNeverOnline(t *testing.T) {
	env := newTestEnv(t, "asleep")
	env.selectVehicle(t)

	out := env.svc.Run(context.Background(), tesla.CommandHonkHorn)
	assert.False(t, out.Success)
	assert.Equal(t, "Failed to honk horn: Failed to ensure vehicle is online: HTTP 408", out.Text)
	assert.Equal(t, http.StatusRequestTimeout, out.HTTPStatus)
	assert.Equal(t, 1, env.fleet.wakes)
	assert.Empty(t, env.fleet.commands)

	link, err := env.svc.LinkState()
	require.NoError(t, err)
	assert.Equal(t, state.StateOffline, link.CurrentState)
}

func TestRunCommandFailures(t *testing.T) {
	cases := []struct {
		status int
		text   string
		reauth bool
	}{
		{http.StatusUnauthorized, TextTokenUnavailable, true},
		{http.StatusNotFound, TextVehicleNotFound, false},
		{http.StatusRequestTimeout, TextVehicleOffline, false},
		{http.StatusInternalServerError, "Failed to flash lights: HTTP 500", false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			env := newTestEnv(t, "online")
			env.fleet.commandStatus = tc.status
			env.selectVehicle(t)

			out := env.svc.Run(context.Background(), tesla.CommandFlashLights)
			assert.False(t, out.Success)
			assert.Equal(t, tc.text, out.Text)
			assert.Equal(t, tc.status, out.HTTPStatus)
			assert.Equal(t, tc.reauth, out.Reauth)
			assert.Equal(t, tc.reauth, env.svc.NeedsReauth())

			require.Len(t, env.logs.entries, 1)
			assert.False(t, env.logs.entries[0].Success)
			assert.Equal(t, tc.text, env.logs.entries[0].Message)
		})
	}
}

func TestReauthClearedBySuccess(t *testing.T) {
	env := newTestEnv(t, "online")
	env.selectVehicle(t)

	env.fleet.commandStatus = http.StatusUnauthorized
	env.svc.Run(context.Background(), tesla.CommandUnlock)
	assert.True(t, env.svc.NeedsReauth())

	env.fleet.commandStatus = 0
	out := env.svc.Run(context.Background(), tesla.CommandUnlock)
	assert.True(t, out.Success)
	assert.False(t, env.svc.NeedsReauth())
}

func TestRunWithoutToken(t *testing.T) {
	env := newTestEnv(t, "online")
	env.selectVehicle(t)
	require.NoError(t, env.svc.Logout(context.Background()))

	out := env.svc.Run(context.Background(), tesla.CommandVehicle)
	assert.Equal(t, TextTokenUnavailable, out.Text)
	assert.True(t, out.Reauth)

	out = env.svc.Run(context.Background(), tesla.CommandLock)
	assert.Equal(t, "Failed to lock doors: Failed to ensure vehicle is online: HTTP 401", out.Text)
}

func TestRunUnexpectedError(t *testing.T) {
	env := newTestEnv(t, "asleep")
	env.selectVehicle(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := env.svc.Run(ctx, tesla.CommandVentWindows)
	assert.False(t, out.Success)
	assert.True(t, strings.HasPrefix(out.Text, "Failed to vent windows: Unexpected error: "), out.Text)
	assert.Zero(t, out.HTTPStatus)
}

func TestRunVehicleDataStoresPayload(t *testing.T) {
	env := newTestEnv(t, "online")
	env.selectVehicle(t)

	out := env.svc.Run(context.Background(), tesla.CommandVehicleData)
	require.True(t, out.Success, out.Text)
	assert.Equal(t, "Vehicle infoEx fetch successful", out.Text)
	assert.Contains(t, out.Payload, "\n   \"response\": {")

	_, payload := env.svc.Status()
	assert.Equal(t, out.Payload, payload)

	link, err := env.svc.LinkState()
	require.NoError(t, err)
	require.NotNil(t, link.BatteryLevel)
	assert.Equal(t, 81, *link.BatteryLevel)
	require.NotNil(t, link.Locked)
	assert.True(t, *link.Locked)
	assert.Equal(t, time.UnixMilli(1700000000000), link.UpdatedAt)
}

func TestRunReadClearsPreviousPayload(t *testing.T) {
	env := newTestEnv(t, "online")
	env.selectVehicle(t)

	require.True(t, env.svc.Run(context.Background(), tesla.CommandVehicle).Success)
	_, payload := env.svc.Status()
	require.NotEmpty(t, payload)

	env.svc.Run(context.Background(), tesla.CommandLock)
	_, payload = env.svc.Status()
	assert.NotEmpty(t, payload)

	require.NoError(t, env.svc.Logout(context.Background()))
	env.svc.Run(context.Background(), tesla.CommandVehicle)
	_, payload = env.svc.Status()
	assert.Empty(t, payload)
}

func TestRunWakeUpSkipsOnlineWait(t *testing.T) {
	env := newTestEnv(t, "asleep")
	env.selectVehicle(t)

	out := env.svc.Run(context.Background(), tesla.CommandWakeUp)
	assert.True(t, out.Success)
	assert.Equal(t, "Wake up successful", out.Text)
	assert.Equal(t, 1, env.fleet.wakes)

	link, err := env.svc.LinkState()
	require.NoError(t, err)
	assert.Equal(t, state.StateWaking, link.CurrentState)
}

func TestListVehiclesSyncsStore(t *testing.T) {
	env := newTestEnv(t, "asleep")

	vehicles, err := env.svc.ListVehicles(context.Background())
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, testVIN, vehicles[0].VIN)
	assert.Equal(t, int64(11), vehicles[0].TeslaID)
	assert.Equal(t, "Red", vehicles[0].DisplayName)

	stored := env.vehicles.get(testVIN)
	require.NotNil(t, stored)
	assert.Equal(t, "asleep", stored.State)

	env.selectVehicle(t)
	link, err := env.svc.LinkState()
	require.NoError(t, err)
	assert.Equal(t, state.StateAsleep, link.CurrentState)
}

func TestLinkStateChangesArePersisted(t *testing.T) {
	env := newTestEnv(t, "asleep")
	_, err := env.svc.ListVehicles(context.Background())
	require.NoError(t, err)
	env.selectVehicle(t)

	env.fleet.state = "online"
	require.True(t, env.svc.Run(context.Background(), tesla.CommandVehicle).Success)

	assert.Equal(t, "online", env.vehicles.get(testVIN).State)
	assert.Contains(t, env.hub.messages, ws.MsgTypeLinkState)
}

func TestSelectVehicleRestoresStoredLinkState(t *testing.T) {
	env := newTestEnv(t, "online")
	require.NoError(t, env.vehicles.Upsert(context.Background(), &models.Vehicle{VIN: testVIN, State: "asleep"}))

	env.selectVehicle(t)
	link, err := env.svc.LinkState()
	require.NoError(t, err)
	assert.Equal(t, state.StateAsleep, link.CurrentState)

	states := env.svc.LinkStates()
	require.Contains(t, states, testVIN)
	assert.Equal(t, state.StateAsleep, states[testVIN].CurrentState)
}

func TestSelectVehicleKeepsTrackedLinkState(t *testing.T) {
	env := newTestEnv(t, "online")
	env.selectVehicle(t)
	require.True(t, env.svc.Run(context.Background(), tesla.CommandVehicle).Success)

	// 数据库中的旧状态不覆盖已跟踪的状态
	require.NoError(t, env.vehicles.Upsert(context.Background(), &models.Vehicle{VIN: testVIN, State: "asleep"}))
	env.selectVehicle(t)

	link, err := env.svc.LinkState()
	require.NoError(t, err)
	assert.Equal(t, state.StateOnline, link.CurrentState)
}

func TestSelectVehicleUnknownToStore(t *testing.T) {
	env := newTestEnv(t, "online")
	env.selectVehicle(t)

	link, err := env.svc.LinkState()
	require.NoError(t, err)
	assert.Equal(t, state.StateUnknown, link.CurrentState)
	assert.Len(t, env.svc.LinkStates(), 1)
}

func TestLoginBuildsAuthorizeURL(t *testing.T) {
	env := newTestEnv(t, "online")

	authURL, err := env.svc.Login(context.Background())
	require.NoError(t, err)
	assert.Contains(t, authURL, "client_id="+testClientID)

	status, _ := env.svc.Status()
	assert.Equal(t, "Authentication process started...", status)
}

func TestLoginWithoutClientID(t *testing.T) {
	env := newTestEnv(t, "online")
	require.NoError(t, env.store.Put(context.Background(), storage.Clear(storage.KeyClientID)))

	_, err := env.svc.Login(context.Background())
	assert.ErrorIs(t, err, auth.ErrMissingClientID)

	status, _ := env.svc.Status()
	assert.Equal(t, "Authentication failed: "+auth.ErrMissingClientID.Error(), status)
}

func TestCallbackStateMismatch(t *testing.T) {
	env := newTestEnv(t, "online")
	_, err := env.svc.Login(context.Background())
	require.NoError(t, err)

	err = env.svc.Callback(context.Background(), "http://localhost:4000/auth/callback?code=abc&state=forged")
	assert.ErrorIs(t, err, auth.ErrStateMismatch)

	status, _ := env.svc.Status()
	assert.True(t, strings.HasPrefix(status, "Authentication failed: "), status)
	assert.Contains(t, env.hub.types(), ws.MsgTypeError)
}

func TestTokenStatusAndLogout(t *testing.T) {
	env := newTestEnv(t, "online")
	ctx := context.Background()

	info, err := env.svc.TokenStatus(ctx)
	require.NoError(t, err)
	assert.True(t, info.HasRefreshToken)
	assert.Greater(t, info.LifeRemaining, 90)

	require.NoError(t, env.svc.Logout(ctx))
	_, err = env.svc.TokenStatus(ctx)
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestSettingsMasksSecret(t *testing.T) {
	env := newTestEnv(t, "online")

	view, err := env.svc.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testClientID, view.ClientID)
	assert.Equal(t, "ta-secret.************cdef", view.ClientSecret)
	assert.Equal(t, "empty", view.Validation["vin"])
	assert.False(t, view.Valid)
}

func TestUpdateSettingsValidation(t *testing.T) {
	env := newTestEnv(t, "online")

	_, err := env.svc.UpdateSettings(context.Background(), config.Settings{
		VIN:      "5YJ3E1",
		BaseURL:  "http://insecure.example.com",
		ClientID: testClientID,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{"vin": "incomplete", "base_url": "invalid"}, verr.Fields)
	assert.Nil(t, env.svc.Session())
}

func TestUpdateSettingsRebuildsSession(t *testing.T) {
	env := newTestEnv(t, "online")
	ctx := context.Background()
	env.selectVehicle(t)

	view, err := env.svc.UpdateSettings(ctx, config.Settings{
		VIN:          " " + testVIN + " ",
		BaseURL:      "https://proxy.example.com/fleet",
		ClientID:     testClientID,
		ClientSecret: "ta-secret.************cdef",
	})
	require.NoError(t, err)
	assert.True(t, view.Valid)
	assert.Equal(t, "ta-secret.************cdef", view.ClientSecret)

	secret, err := env.store.Get(ctx, storage.KeyClientSecret)
	require.NoError(t, err)
	assert.Equal(t, testClientSecret, secret)

	require.NotNil(t, env.svc.Session())
	assert.Equal(t, "https://proxy.example.com/fleet", env.svc.Session().BaseURL())
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, "online")
	ctx := context.Background()

	_, err := env.svc.History(ctx, 10, 0)
	assert.ErrorIs(t, err, ErrNoVehicleSelected)

	env.selectVehicle(t)
	env.svc.Run(ctx, tesla.CommandLock)
	env.svc.Run(ctx, tesla.CommandUnlock)

	page, err := env.svc.History(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "unlock", page.Items[0].Command)
}

func TestInitDataReflectsSelection(t *testing.T) {
	env := newTestEnv(t, "online")

	data := env.svc.InitData()
	assert.Equal(t, StatusReady, data.Status)
	assert.Empty(t, data.VIN)

	env.selectVehicle(t)
	data = env.svc.InitData()
	assert.Equal(t, testVIN, data.VIN)
	require.NotNil(t, data.LinkState)

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(raw), testVIN)
}

func TestEnsureTokenWithFreshToken(t *testing.T) {
	env := newTestEnv(t, "online")

	info, err := env.svc.EnsureToken(context.Background())
	require.NoError(t, err)
	assert.Greater(t, info.LifeRemaining, auth.RefreshThreshold)
}
