package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/database/testutil"
	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/pkg/mail"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []InvitationEvent
	next   InvitationNotifier
}

func (r *recordingNotifier) Dispatch(ctx context.Context, events []InvitationEvent) {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	if r.next != nil {
		r.next.Dispatch(ctx, events)
	}
}

func (r *recordingNotifier) kinds() []InvitationEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]InvitationEventKind, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Kind)
	}
	return out
}

type capturingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *capturingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

type invitationFixture struct {
	db            *gorm.DB
	clock         *testClock
	invitations   *InvitationService
	notifications *NotificationService
	roster        *RosterService
	recorder      *recordingNotifier
	mailer        *capturingMailer
}

func newInvitationFixture(t *testing.T) *invitationFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()

	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	notifications.now = clock.Now

	mailer := &capturingMailer{}
	dispatcher, err := NewNotificationDispatcher(notifications,
		WithDispatcherMailer(mailer),
		WithDispatcherAcceptURL("https://app.example.com/invitations/accept"),
	)
	require.NoError(t, err)

	recorder := &recordingNotifier{next: dispatcher}
	invitations, err := NewInvitationService(db, notifications,
		WithInvitationClock(clock.Now),
		WithInvitationNotifier(recorder),
	)
	require.NoError(t, err)

	roster, err := NewRosterService(db, WithRosterClock(clock.Now))
	require.NoError(t, err)

	return &invitationFixture{
		db:            db,
		clock:         clock,
		invitations:   invitations,
		notifications: notifications,
		roster:        roster,
		recorder:      recorder,
		mailer:        mailer,
	}
}

func createUser(t *testing.T, db *gorm.DB, email, fullName, role string) *models.User {
	t.Helper()
	user := &models.User{Email: email, FullName: fullName, Role: role, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func (f *invitationFixture) invite(t *testing.T, inviter *models.User, email string) *models.Invitation {
	t.Helper()
	inv, _, err := f.invitations.Create(context.Background(), CreateInvitationInput{
		InviterID: inviter.ID,
		Email:     email,
		Notify:    true,
	})
	require.NoError(t, err)
	return inv
}

func (f *invitationFixture) reload(t *testing.T, id string) models.Invitation {
	t.Helper()
	var inv models.Invitation
	require.NoError(t, f.db.Where("id = ?", id).First(&inv).Error)
	return inv
}

func countNotifications(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var total int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&total).Error)
	return total
}
