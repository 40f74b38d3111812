package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfigueroa/linealert/internal/api"
	"github.com/mfigueroa/linealert/internal/api/handler"
	"github.com/mfigueroa/linealert/internal/cache"
	"github.com/mfigueroa/linealert/internal/config"
	"github.com/mfigueroa/linealert/internal/otp"
	"github.com/mfigueroa/linealert/internal/stops"
	"github.com/mfigueroa/linealert/internal/store"
	"github.com/mfigueroa/linealert/internal/transit"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memStore struct {
	users map[string]*store.User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*store.User)}
}

func (m *memStore) ListUsers(ctx context.Context) ([]store.User, error) {
	var out []store.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) UserByPhone(ctx context.Context, phone string) (*store.User, error) {
	u, ok := m.users[phone]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) EnsureUser(ctx context.Context, phone string) (*store.User, error) {
	if u, ok := m.users[phone]; ok {
		copied := *u
		return &copied, nil
	}
	u := &store.User{PhoneNumber: phone, CreatedAt: time.Now()}
	m.users[phone] = u
	copied := *u
	return &copied, nil
}

func (m *memStore) SetHome(ctx context.Context, phone string, lat, lng float64) error {
	u, ok := m.users[phone]
	if !ok {
		return store.ErrUserNotFound
	}
	u.HomeLat, u.HomeLng = &lat, &lng
	return nil
}

func (m *memStore) SetCarrier(ctx context.Context, phone, carrier string) error {
	u, ok := m.users[phone]
	if !ok {
		return store.ErrUserNotFound
	}
	u.Carrier = carrier
	return nil
}

func (m *memStore) AddFavorite(ctx context.Context, phone, line string) ([]string, error) {
	u, ok := m.users[phone]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	for _, l := range u.FavoriteLines {
		if l == line {
			return nil, store.ErrDuplicateFavorite
		}
	}
	u.FavoriteLines = append(u.FavoriteLines, line)
	return u.FavoriteLines, nil
}

func (m *memStore) RemoveFavorite(ctx context.Context, phone, line string) ([]string, error) {
	u, ok := m.users[phone]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	for i, l := range u.FavoriteLines {
		if l == line {
			u.FavoriteLines = append(u.FavoriteLines[:i], u.FavoriteLines[i+1:]...)
			return u.FavoriteLines, nil
		}
	}
	return nil, store.ErrFavoriteNotFound
}

func (m *memStore) SetNotificationSettings(ctx context.Context, phone, settingsJSON string) error {
	u, ok := m.users[phone]
	if !ok {
		return store.ErrUserNotFound
	}
	u.NotificationSettings = settingsJSON
	return nil
}

func (m *memStore) HealthCheck(ctx context.Context) error { return nil }
func (m *memStore) Close()                                {}

type fakeSource struct {
	predictions []transit.Prediction
}

func (f *fakeSource) Predictions(ctx context.Context, stopID string, kind transit.Kind) ([]transit.Prediction, error) {
	return f.predictions, nil
}

func (f *fakeSource) AllPredictions(ctx context.Context, stopID string) []transit.Prediction {
	return f.predictions
}

type captureSender struct {
	lastBody string
}

func (c *captureSender) Send(ctx context.Context, to, carrier, subject, body string) error {
	c.lastBody = body
	return nil
}

var codeRe = regexp.MustCompile(`\d{6}`)

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type testAPI struct {
	server *httptest.Server
	sender *captureSender
	store  *memStore
}

func newTestAPI(t *testing.T, predictions []transit.Prediction) *testAPI {
	t.Helper()

	cfg := &config.Config{
		CORSAllowOrigins: []string{"http://localhost:3000"},
		RateLimitEnabled: false,
	}
	sender := &captureSender{}
	otpSvc := otp.NewService(time.Minute, sender, nil)
	t.Cleanup(otpSvc.Close)
	sessions := cache.New[string](time.Hour)
	t.Cleanup(sessions.Close)

	idx := stops.FromStops([]stops.Stop{
		{ID: "40380", Name: "Clark/Lake", Lat: 41.885737, Lng: -87.630886},
		{ID: "40460", Name: "Merchandise Mart", Lat: 41.888969, Lng: -87.633924},
	})

	st := newMemStore()
	h := handler.New(st, idx, &fakeSource{predictions: predictions}, otpSvc, sessions, cfg, nil)
	server := httptest.NewServer(api.NewRouter(h, nil, cfg))
	t.Cleanup(server.Close)

	return &testAPI{server: server, sender: sender, store: st}
}

func (a *testAPI) request(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// login runs the send-code/verify flow and returns a session token.
func (a *testAPI) login(t *testing.T, phone string) string {
	t.Helper()

	resp, _ := a.request(t, http.MethodPost, "/api/v1/auth/send-code", "", map[string]string{
		"phone_number": phone, "carrier": "verizon",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	code := codeRe.FindString(a.sender.lastBody)
	require.Len(t, code, 6)

	resp, body := a.request(t, http.MethodPost, "/api/v1/auth/verify", "", map[string]string{
		"phone_number": phone, "code": code, "carrier": "verizon",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)

	resp, body := a.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, body = a.request(t, http.MethodGet, "/health/db", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", body["database"])
}

func TestAuthFlow(t *testing.T) {
	a := newTestAPI(t, nil)
	token := a.login(t, "3125550100")

	resp, body := a.request(t, http.MethodGet, "/api/v1/me", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3125550100", body["phone_number"])
	assert.Equal(t, "verizon", body["carrier"])
}

func TestVerifyWrongCode(t *testing.T) {
	a := newTestAPI(t, nil)

	resp, _ := a.request(t, http.MethodPost, "/api/v1/auth/send-code", "", map[string]string{
		"phone_number": "3125550100",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = a.request(t, http.MethodPost, "/api/v1/auth/verify", "", map[string]string{
		"phone_number": "3125550100", "code": "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnauthenticatedRequest(t *testing.T) {
	a := newTestAPI(t, nil)

	resp, _ := a.request(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = a.request(t, http.MethodGet, "/api/v1/me", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	a := newTestAPI(t, nil)
	token := a.login(t, "3125550100")

	resp, _ := a.request(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = a.request(t, http.MethodGet, "/api/v1/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSetHomeAndFavorites(t *testing.T) {
	a := newTestAPI(t, nil)
	token := a.login(t, "3125550100")

	resp, _ := a.request(t, http.MethodPut, "/api/v1/me/home", token, map[string]float64{
		"lat": 41.8857, "lng": -87.6309,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := a.request(t, http.MethodPost, "/api/v1/me/favorites", token, map[string]string{"line": "Red"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []interface{}{"Red"}, body["favorite_lines"])

	resp, _ = a.request(t, http.MethodPost, "/api/v1/me/favorites", token, map[string]string{"line": "Red"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = a.request(t, http.MethodDelete, "/api/v1/me/favorites/Red", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = a.request(t, http.MethodDelete, "/api/v1/me/favorites/Red", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetHomeValidatesCoordinates(t *testing.T) {
	a := newTestAPI(t, nil)
	token := a.login(t, "3125550100")

	resp, _ := a.request(t, http.MethodPut, "/api/v1/me/home", token, map[string]float64{
		"lat": 120.0, "lng": -87.6,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArrivalsNearHome(t *testing.T) {
	predictions := []transit.Prediction{{Line: "Red", ArrivalMinutes: 4, StopID: "40380"}}
	a := newTestAPI(t, predictions)
	token := a.login(t, "3125550100")

	// No home yet
	resp, _ := a.request(t, http.MethodGet, "/api/v1/arrivals", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = a.request(t, http.MethodPut, "/api/v1/me/home", token, map[string]float64{
		"lat": 41.8857, "lng": -87.6309,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := a.request(t, http.MethodGet, "/api/v1/arrivals", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stop, _ := body["stop"].(map[string]interface{})
	assert.Equal(t, "40380", stop["id"], "Clark/Lake is nearest to the home coordinates")
	preds, _ := body["predictions"].([]interface{})
	require.Len(t, preds, 1)
}

func TestArrivalsInvalidType(t *testing.T) {
	a := newTestAPI(t, nil)
	token := a.login(t, "3125550100")

	a.request(t, http.MethodPut, "/api/v1/me/home", token, map[string]float64{
		"lat": 41.8857, "lng": -87.6309,
	})

	resp, _ := a.request(t, http.MethodGet, "/api/v1/arrivals?type=boat", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNearestStopEndpoint(t *testing.T) {
	a := newTestAPI(t, nil)

	resp, body := a.request(t, http.MethodGet,
		fmt.Sprintf("/api/v1/stops/nearest?lat=%f&lng=%f", 41.889, -87.634), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "40460", body["id"])

	resp, _ = a.request(t, http.MethodGet, "/api/v1/stops/nearest?lat=abc&lng=1", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateSettings(t *testing.T) {
	a := newTestAPI(t, nil)
	token := a.login(t, "3125550100")

	resp, _ := a.request(t, http.MethodPut, "/api/v1/me/settings", token, map[string]int{
		"threshold_minutes": 10,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	u, err := a.store.UserByPhone(context.Background(), "3125550100")
	require.NoError(t, err)
	assert.Equal(t, 10, u.ThresholdMinutes())
}
