package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/app"
	iauth "github.com/charlesng35/crewline/internal/auth"
	"github.com/charlesng35/crewline/internal/database/testutil"
	"github.com/charlesng35/crewline/internal/realtime"
	"github.com/charlesng35/crewline/internal/services"
)

func newTestServices(t *testing.T, db *gorm.DB) Services {
	t.Helper()

	hub := realtime.NewHub()
	users, err := services.NewUserService(db)
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(db, hub)
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, notifications)
	require.NoError(t, err)
	roster, err := services.NewRosterService(db)
	require.NoError(t, err)

	return Services{Users: users, Invitations: invitations, Roster: roster, Notifications: notifications, Hub: hub}
}

func newTestJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)
	return jwtSvc
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	router, err := NewRouter(db, newTestJWT(t), &app.Config{}, newTestServices(t, db))
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)

	for _, path := range []string{"/api/team/invitations", "/api/team/members", "/api/notifications"} {
		w = serve(router, http.MethodGet, path)
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w = serve(router, http.MethodGet, "/does-not-exist")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	disabled, err := NewRouter(db, newTestJWT(t), &app.Config{}, newTestServices(t, db))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, serve(disabled, http.MethodGet, "/metrics").Code)

	cfg := &app.Config{Monitoring: app.MonitoringConfig{Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"}}}
	enabled, err := NewRouter(db, newTestJWT(t), cfg, newTestServices(t, db))
	require.NoError(t, err)

	serve(enabled, http.MethodGet, "/health")
	w := serve(enabled, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "crewline_api_latency_seconds"), "expected latency histogram in exposition")
}

func TestRouter_StreamRequiresRealtime(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	router, err := NewRouter(db, newTestJWT(t), &app.Config{}, newTestServices(t, db))
	require.NoError(t, err)

	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/notifications/stream").Code)

	cfg := &app.Config{Realtime: app.RealtimeConfig{Enabled: true}}
	router, err = NewRouter(db, newTestJWT(t), cfg, newTestServices(t, db))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/api/notifications/stream").Code)
}

func TestNewRouterValidatesDependencies(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	jwtSvc := newTestJWT(t)
	svc := newTestServices(t, db)

	_, err := NewRouter(nil, jwtSvc, &app.Config{}, svc)
	require.Error(t, err)
	_, err = NewRouter(db, nil, &app.Config{}, svc)
	require.Error(t, err)
	_, err = NewRouter(db, jwtSvc, nil, svc)
	require.Error(t, err)
	_, err = NewRouter(db, jwtSvc, &app.Config{}, Services{})
	require.Error(t, err)
}
