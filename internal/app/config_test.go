package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "identity.example.com", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, 72*time.Hour, cfg.Invitations.Expiry)
	require.False(t, cfg.Invitations.NotifyByEmail)
	require.Equal(t, 32, cfg.Invitations.TokenBytes)
	require.Equal(t, "https://app.example.com/invitations", cfg.Invitations.AcceptURL)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "*/15 * * * *", cfg.Maintenance.ExpirySchedule)
	require.Equal(t, "@daily", cfg.Maintenance.NotificationSchedule)
	require.Equal(t, 7, cfg.Maintenance.NotificationRetention)
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 7*24*time.Hour, cfg.Invitations.Expiry)
	require.True(t, cfg.Invitations.NotifyByEmail)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Realtime.Enabled)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("CREWLINE_SERVER_PORT", "7001")
	t.Setenv("CREWLINE_INVITATIONS_EXPIRY", "48h")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7001, cfg.Server.Port)
	require.Equal(t, 48*time.Hour, cfg.Invitations.Expiry)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	bad := *cfg
	bad.Invitations.Expiry = 0
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Invitations.TokenBytes = 8
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Server.Port = 70000
	require.Error(t, bad.Validate())
}

func TestDatabaseSettingsPicksDriverBlock(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	db := cfg.Database.DatabaseSettings()
	require.Equal(t, "postgres", db.Driver)
	require.Equal(t, "db.example.com", db.Host)
	require.Equal(t, 6543, db.Port)
	require.Equal(t, "crewline", db.Name)
	require.Equal(t, "crewline", db.User)
	require.Equal(t, "require", db.Options["sslmode"])

	sqlite := DatabaseConfig{Driver: "sqlite3", Path: " ./data/x.db "}.DatabaseSettings()
	require.Equal(t, "sqlite", sqlite.Driver)
	require.Equal(t, "./data/x.db", sqlite.Path)
	require.Empty(t, sqlite.Host)
}

func TestApplyRuntimeDefaultsGeneratesJWTSecret(t *testing.T) {
	cfg := &Config{}
	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.True(t, generated["auth.jwt.secret"])
	require.NotEmpty(t, cfg.Auth.JWT.Secret)

	again, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestJWTServiceConfigDefaultsTTL(t *testing.T) {
	jwtCfg := AuthConfig{JWT: JWTSettings{Secret: "s"}}.JWTServiceConfig()
	require.Equal(t, "s", jwtCfg.Secret)
	require.Positive(t, jwtCfg.AccessTokenTTL)
}

func TestSMTPSettings(t *testing.T) {
	smtp := EmailConfig{SMTP: SMTPConfig{Enabled: true, Host: "mail", Port: 25, From: "team@example.com"}}.SMTPSettings()
	require.True(t, smtp.Enabled)
	require.Equal(t, "mail", smtp.Host)
	require.Equal(t, 25, smtp.Port)
}
