package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/app"
	iauth "github.com/charlesng35/crewline/internal/auth"
	"github.com/charlesng35/crewline/internal/handlers"
	"github.com/charlesng35/crewline/internal/middleware"
	"github.com/charlesng35/crewline/internal/realtime"
	"github.com/charlesng35/crewline/internal/services"
)

// Services bundles the domain services the HTTP layer exposes.
type Services struct {
	Users         *services.UserService
	Invitations   *services.InvitationService
	Roster        *services.RosterService
	Notifications *services.NotificationService
	Hub           *realtime.Hub
}

// NewRouter builds the Gin engine, wires middleware and registers the team routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svc Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if svc.Users == nil || svc.Invitations == nil || svc.Roster == nil || svc.Notifications == nil {
		return nil, fmt.Errorf("user, invitation, roster and notification services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt, svc.Users))

	invitationHandler, err := handlers.NewInvitationHandler(svc.Invitations)
	if err != nil {
		return nil, err
	}
	memberHandler, err := handlers.NewMemberHandler(svc.Roster)
	if err != nil {
		return nil, err
	}
	registerTeamRoutes(api, invitationHandler, memberHandler)

	notificationHandler, err := handlers.NewNotificationHandler(svc.Notifications)
	if err != nil {
		return nil, err
	}
	var realtimeHandler *handlers.RealtimeHandler
	if cfg.Realtime.Enabled && svc.Hub != nil {
		realtimeHandler, err = handlers.NewRealtimeHandler(svc.Hub)
		if err != nil {
			return nil, err
		}
	}
	registerNotificationRoutes(api, notificationHandler, realtimeHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
