package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/api"
	"github.com/charlesng35/crewline/internal/app"
	"github.com/charlesng35/crewline/internal/app/maintenance"
	iauth "github.com/charlesng35/crewline/internal/auth"
	"github.com/charlesng35/crewline/internal/database"
	"github.com/charlesng35/crewline/internal/realtime"
	"github.com/charlesng35/crewline/internal/services"
	"github.com/charlesng35/crewline/pkg/logger"
	"github.com/charlesng35/crewline/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Hub      *realtime.Hub
	Services api.Services
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, services, background jobs, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub()

	users, err := services.NewUserService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	notifications, err := services.NewNotificationService(stack.DB, stack.Hub)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	dispatcherOpts := []services.DispatcherOption{
		services.WithDispatcherHub(stack.Hub),
		services.WithDispatcherAcceptURL(cfg.Invitations.AcceptURL),
	}
	if cfg.Invitations.NotifyByEmail && cfg.Email.SMTP.Enabled {
		mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise mailer: %w", err)
		}
		dispatcherOpts = append(dispatcherOpts, services.WithDispatcherMailer(mailer))
		log.Info("invitation e-mail enabled", zap.String("smtp_host", cfg.Email.SMTP.Host))
	}

	dispatcher, err := services.NewNotificationDispatcher(notifications, dispatcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise notification dispatcher: %w", err)
	}

	invitations, err := services.NewInvitationService(stack.DB, notifications,
		services.WithInvitationExpiry(cfg.Invitations.Expiry),
		services.WithInvitationTokenSize(cfg.Invitations.TokenBytes),
		services.WithInvitationNotifier(dispatcher),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise invitation service: %w", err)
	}

	roster, err := services.NewRosterService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise roster service: %w", err)
	}

	stack.Services = api.Services{
		Users:         users,
		Invitations:   invitations,
		Roster:        roster,
		Notifications: notifications,
		Hub:           stack.Hub,
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(invitations, notifications,
			maintenance.WithExpirySchedule(cfg.Maintenance.ExpirySchedule),
			maintenance.WithNotificationSchedule(cfg.Maintenance.NotificationSchedule),
			maintenance.WithNotificationRetentionDays(cfg.Maintenance.NotificationRetention),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		if err := stack.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("initial maintenance run failed", zap.Error(err))
		}
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Services)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
