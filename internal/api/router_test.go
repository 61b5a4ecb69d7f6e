package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-safety/aegis/internal/api"
	"github.com/aegis-safety/aegis/internal/api/models"
	"github.com/aegis-safety/aegis/internal/auth"
	"github.com/aegis-safety/aegis/internal/connectivity"
	"github.com/aegis-safety/aegis/internal/dispatch"
	"github.com/aegis-safety/aegis/internal/geofence"
	"github.com/aegis-safety/aegis/internal/history"
	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/internal/notify"
	"github.com/aegis-safety/aegis/internal/share"
	"github.com/aegis-safety/aegis/internal/tracking"
)

// fakeCapability is a minimal location source: permission granted, no
// samples until emit is called.
type fakeCapability struct {
	fn func(location.Position)
}

type fakeSubscription struct{}

func (fakeSubscription) Cancel() {}

func (f *fakeCapability) CurrentPosition(_ context.Context) (location.Position, error) {
	return location.Position{}, location.ErrUnavailable
}

func (f *fakeCapability) WatchPosition(fn func(location.Position), _ location.WatchOptions) (location.Subscription, error) {
	f.fn = fn
	return fakeSubscription{}, nil
}

func (f *fakeCapability) PermissionStatus() location.PermissionStatus {
	return location.PermissionGranted
}

// testJWTService creates a JWT service for generating test tokens.
func testJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://engine.aegis-safety.io",
		Audience:   "aegis-engine",
	})
}

// generateTestToken generates a valid test token.
func generateTestToken(t *testing.T) string {
	t.Helper()
	token, _, err := testJWTService().GenerateAccessToken("usr_testuser123")
	require.NoError(t, err)
	return token
}

type routerFixture struct {
	router     http.Handler
	tracker    *tracking.Manager
	dispatcher *dispatch.Service
	shares     *share.Service
	notifier   *notify.FakeNotifier
}

func newTestRouter(t *testing.T) *routerFixture {
	t.Helper()
	logger := zerolog.New(io.Discard)

	tracker := tracking.NewManager(tracking.ManagerConfig{
		Capability: &fakeCapability{},
		Logger:     logger,
	})

	zones := geofence.NewService(geofence.ServiceConfig{
		Repository: geofence.NewInMemoryRepository(),
		Logger:     logger,
		UserID:     "usr_testuser123",
	})

	notifier := notify.NewFakeNotifier()
	dispatcher := dispatch.NewService(dispatch.ServiceConfig{
		Repository: dispatch.NewInMemoryRepository(),
		Notifier:   notifier,
		Contacts: dispatch.StaticContacts{
			{Kind: notify.RecipientSMS, Address: "+31600000001", Name: "Alice"},
		},
		Logger:        logger,
		Signal:        connectivity.NewManualSignal(true),
		History:       history.NewMemoryRecorder(),
		UserID:        "usr_testuser123",
		UserName:      "Dana",
		RetryInterval: time.Millisecond,
	})

	shares := share.NewService(share.ServiceConfig{
		Repository: share.NewInMemoryRepository(),
		Positions:  tracker,
		Logger:     logger,
		UserID:     "usr_testuser123",
	})

	router := api.NewRouter(api.RouterConfig{
		Version:         "test",
		BuildTime:       "2025-01-01T00:00:00Z",
		Logger:          logger,
		JWTService:      testJWTService(),
		TrackingManager: tracker,
		ZoneService:     zones,
		DispatchService: dispatcher,
		ShareService:    shares,
		Signal:          connectivity.NewManualSignal(true),
	})

	return &routerFixture{
		router:     router,
		tracker:    tracker,
		dispatcher: dispatcher,
		shares:     shares,
		notifier:   notifier,
	}
}

// addAuthHeader adds a valid Bearer token to the request.
func addAuthHeader(t *testing.T, req *http.Request) {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t))
}

func TestRouter_HealthCheck(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_ReadinessCheck(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_OwnerEndpointsRequireAuth(t *testing.T) {
	f := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/zones/"},
		{http.MethodPost, "/v1/sos"},
		{http.MethodGet, "/v1/alerts/"},
		{http.MethodGet, "/v1/shares/"},
		{http.MethodGet, "/v1/tracking/status"},
		{http.MethodGet, "/v1/ops/status"},
	}
	for _, ep := range endpoints {
		req := httptest.NewRequest(ep.method, ep.path, http.NoBody)
		w := httptest.NewRecorder()

		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", ep.method, ep.path)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	}
}

func TestRouter_ZoneLifecycle(t *testing.T) {
	f := newTestRouter(t)

	body := bytes.NewBufferString(`{
		"name": "Home",
		"centerLat": 52.37,
		"centerLon": 4.89,
		"radiusMeters": 150,
		"alertOnEnter": false,
		"alertOnExit": true
	}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/", body)
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.Zone
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "/v1/zones/"+created.ID, w.Header().Get("Location"))
	assert.True(t, created.Enabled)

	// List includes the new zone
	req = httptest.NewRequest(http.MethodGet, "/v1/zones/", http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var list models.ZoneListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Home", list.Items[0].Name)

	// Toggle off
	req = httptest.NewRequest(http.MethodPost, "/v1/zones/"+created.ID+":toggle",
		bytes.NewBufferString(`{"enabled": false}`))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var toggled models.Zone
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &toggled))
	assert.False(t, toggled.Enabled)

	// Delete
	req = httptest.NewRequest(http.MethodDelete, "/v1/zones/"+created.ID+"/", http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_ZoneValidationProblem(t *testing.T) {
	f := newTestRouter(t)

	body := bytes.NewBufferString(`{
		"name": "",
		"centerLat": 95,
		"centerLon": 4.89,
		"radiusMeters": 5
	}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/zones/", body)
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.Len(t, problem.Errors, 3)
}

func TestRouter_SOSTriggerAndFetch(t *testing.T) {
	f := newTestRouter(t)

	body := bytes.NewBufferString(`{"kind": "manual", "position": {"lat": 52.37, "lon": 4.89}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sos", body)
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job models.AlertJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "manual", job.Kind)
	require.Len(t, job.Recipients, 1)

	f.dispatcher.Wait()

	req = httptest.NewRequest(http.MethodGet, "/v1/alerts/"+job.ID, http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "delivered", job.Status)
	assert.Equal(t, 1, f.notifier.SentTo("+31600000001"))
}

func TestRouter_SOSInvalidKind(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sos",
		bytes.NewBufferString(`{"kind": "zoneEnter"}`))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ShareLifecycleAndPublicView(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/shares/",
		bytes.NewBufferString(`{"durationSeconds": 3600, "maxViews": 2}`))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Share
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.AccessCode)

	// Missing code
	req = httptest.NewRequest(http.MethodGet, "/v1/view/"+created.ID, http.NoBody)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Wrong code reads the same as an unknown id
	req = httptest.NewRequest(http.MethodGet, "/v1/view/"+created.ID+"?code=WRONG", http.NoBody)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Correct code, no auth required
	req = httptest.NewRequest(http.MethodGet, "/v1/view/"+created.ID+"?code="+created.AccessCode, http.NoBody)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view models.ShareViewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.NotNil(t, view.ViewsRemaining)
	assert.Equal(t, 1, *view.ViewsRemaining)

	// Owner list shows the session without the access code
	req = httptest.NewRequest(http.MethodGet, "/v1/shares/", http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var list models.ShareListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Empty(t, list.Items[0].AccessCode)

	// Stop, then the public view is gone
	req = httptest.NewRequest(http.MethodDelete, "/v1/shares/"+created.ID, http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/view/"+created.ID+"?code="+created.AccessCode, http.NoBody)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestRouter_TrackingStartAndStatus(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/tracking/start",
		bytes.NewBufferString(`{"mode": "foreground"}`))
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var session models.TrackingSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Equal(t, "foreground", session.Mode)

	// No samples yet
	req = httptest.NewRequest(http.MethodGet, "/v1/tracking/position", http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/tracking/status", http.NoBody)
	addAuthHeader(t, req)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status models.TrackingStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Len(t, status.Sessions, 1)
	assert.False(t, status.Suspended)
}

func TestRouter_UnknownRoute(t *testing.T) {
	f := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
