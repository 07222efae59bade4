package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/crewline/pkg/logger"
)

const (
	defaultRetentionDays    = 30
	defaultExpirySpec       = "@hourly"
	defaultNotificationSpec = "@daily"
)

// InvitationExpirer flips overdue pending invitations to expired.
type InvitationExpirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// NotificationPurger deletes read notifications older than a cutoff.
type NotificationPurger interface {
	PurgeRead(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner coordinates background housekeeping: sweeping expired invitations between lazy checks
// and pruning read notifications past the retention window.
type Cleaner struct {
	invitations   InvitationExpirer
	notifications NotificationPurger
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger
	retention     int

	expirySchedule       string
	notificationSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithNotificationRetentionDays adjusts how long read notifications are kept. Zero disables pruning.
func WithNotificationRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days >= 0 {
			cleaner.retention = days
		}
	}
}

// WithExpirySchedule overrides the cron specification for the invitation expiry sweep.
func WithExpirySchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.expirySchedule = spec
		}
	}
}

// WithNotificationSchedule overrides the cron specification for notification pruning.
func WithNotificationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.notificationSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding job being skipped.
func NewCleaner(invitations InvitationExpirer, notifications NotificationPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		invitations:          invitations,
		notifications:        notifications,
		now:                  time.Now,
		retention:            defaultRetentionDays,
		expirySchedule:       defaultExpirySpec,
		notificationSchedule: defaultNotificationSpec,
		log:                  logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	registered := 0

	if c.invitations != nil {
		if _, err := c.cron.AddFunc(c.expirySchedule, func() {
			if _, err := c.sweepInvitations(context.Background()); err != nil {
				c.log.Warn("invitation expiry sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		registered++
	}

	if c.notifications != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.notificationSchedule, func() {
			if _, err := c.pruneNotifications(context.Background()); err != nil {
				c.log.Warn("notification retention failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		registered++
	}

	if registered == 0 {
		return nil
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.invitations != nil {
		if _, err := c.sweepInvitations(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.notifications != nil && c.retention > 0 {
		if _, err := c.pruneNotifications(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) sweepInvitations(ctx context.Context) (int64, error) {
	if c.invitations == nil {
		return 0, errors.New("maintenance: invitation expirer is not configured")
	}
	count, err := c.invitations.ExpireOverdue(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		c.log.Info("expired overdue invitations", zap.Int64("count", count))
	}
	return count, nil
}

func (c *Cleaner) pruneNotifications(ctx context.Context) (int64, error) {
	cutoff := c.now().UTC().AddDate(0, 0, -c.retention)
	count, err := c.notifications.PurgeRead(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		c.log.Info("pruned read notifications", zap.Int64("count", count), zap.Time("cutoff", cutoff))
	}
	return count, nil
}
