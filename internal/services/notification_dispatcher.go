package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/internal/realtime"
	"github.com/charlesng35/crewline/pkg/logger"
	"github.com/charlesng35/crewline/pkg/mail"
	"github.com/charlesng35/crewline/pkg/metrics"
)

const (
	dispatchChannelInApp    = "in_app"
	dispatchChannelEmail    = "email"
	dispatchChannelRealtime = "realtime"
)

// DispatcherOption customises the NotificationDispatcher.
type DispatcherOption func(*NotificationDispatcher)

// WithDispatcherMailer enables e-mail delivery for invitees without an account.
func WithDispatcherMailer(mailer mail.Mailer) DispatcherOption {
	return func(d *NotificationDispatcher) {
		d.mailer = mailer
	}
}

// WithDispatcherAcceptURL sets the link embedded in invitation e-mails.
func WithDispatcherAcceptURL(link string) DispatcherOption {
	return func(d *NotificationDispatcher) {
		d.acceptURL = strings.TrimSpace(link)
	}
}

// WithDispatcherHub pushes invitation state changes to connected clients.
func WithDispatcherHub(hub *realtime.Hub) DispatcherOption {
	return func(d *NotificationDispatcher) {
		d.hub = hub
	}
}

// NotificationDispatcher turns invitation events into in-app notifications, e-mails and realtime
// pushes.
type NotificationDispatcher struct {
	notifications *NotificationService
	mailer        mail.Mailer
	hub           *realtime.Hub
	acceptURL     string
	log           *zap.Logger
}

// NewNotificationDispatcher constructs a dispatcher backed by the notification service.
func NewNotificationDispatcher(notifications *NotificationService, opts ...DispatcherOption) (*NotificationDispatcher, error) {
	if notifications == nil {
		return nil, errors.New("notification dispatcher: notification service is required")
	}
	d := &NotificationDispatcher{
		notifications: notifications,
		log:           logger.WithModule("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch delivers each event independently. Failures are logged and counted.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, events []InvitationEvent) {
	ctx = ensureContext(ctx)
	for _, event := range events {
		d.dispatchOne(ctx, event)
	}
}

func (d *NotificationDispatcher) dispatchOne(ctx context.Context, event InvitationEvent) {
	switch event.Kind {
	case InvitationEventCreated, InvitationEventResent:
		if event.RecipientUserID != "" {
			d.record(event, dispatchChannelInApp, d.notifyInvitee(ctx, event))
			return
		}
		if event.RecipientEmail != "" && d.mailer != nil {
			d.record(event, dispatchChannelEmail, d.mailInvitee(ctx, event))
		}
	case InvitationEventAccepted, InvitationEventDeclined:
		if event.RecipientUserID != "" {
			d.record(event, dispatchChannelInApp, d.notifyInviter(ctx, event))
		}
	case InvitationEventRevoked:
		if event.RecipientUserID != "" && d.hub != nil {
			d.hub.BroadcastToUser(realtime.StreamInvitations, event.RecipientUserID, realtime.Message{
				Event: realtime.EventInvitationChanged,
				Data: map[string]any{
					"invitationId": event.Invitation.ID,
					"status":       "revoked",
				},
			})
			d.record(event, dispatchChannelRealtime, nil)
		}
	default:
		d.log.Warn("unknown invitation event", zap.String("kind", string(event.Kind)))
	}
}

func (d *NotificationDispatcher) notifyInvitee(ctx context.Context, event InvitationEvent) error {
	inviter := inviterName(event.Inviter)
	title := "Team invitation"
	message := fmt.Sprintf("%s invited you to join their team", inviter)
	if event.Kind == InvitationEventResent {
		message = fmt.Sprintf("%s sent you a reminder to join their team", inviter)
	}

	_, err := d.notifications.Create(ctx, CreateNotificationInput{
		UserID:  event.RecipientUserID,
		Type:    models.NotificationTypeTeamInvitation,
		Title:   title,
		Message: message,
		Data: map[string]any{
			"invitationId": event.Invitation.ID,
			"invitedBy":    event.Invitation.InvitedBy,
			"inviterName":  inviter,
			"role":         event.Invitation.Role,
			"expiresAt":    event.Invitation.ExpiresAt,
		},
		RelatedType: models.RelatedTypeTeamInvitation,
		RelatedID:   event.Invitation.ID,
	})
	return err
}

func (d *NotificationDispatcher) notifyInviter(ctx context.Context, event InvitationEvent) error {
	invitee := event.Invitation.Email
	if event.Invitee != nil {
		invitee = event.Invitee.DisplayName()
	}

	verb := "accepted"
	if event.Kind == InvitationEventDeclined {
		verb = "declined"
	}

	_, err := d.notifications.Create(ctx, CreateNotificationInput{
		UserID:  event.RecipientUserID,
		Type:    models.NotificationTypeInvitationResponse,
		Title:   "Invitation " + verb,
		Message: fmt.Sprintf("%s %s your team invitation", invitee, verb),
		Data: map[string]any{
			"invitationId": event.Invitation.ID,
			"status":       string(event.Invitation.Status),
		},
		RelatedType: models.RelatedTypeTeamInvitation,
		RelatedID:   event.Invitation.ID,
	})
	return err
}

func (d *NotificationDispatcher) mailInvitee(ctx context.Context, event InvitationEvent) error {
	inviter := inviterName(event.Inviter)

	var body strings.Builder
	fmt.Fprintf(&body, "Hello%s,\n\n", greetingName(event.Invitation.Name))
	fmt.Fprintf(&body, "%s invited you to join their team as %s.\n", inviter, event.Invitation.Role)
	if link := d.acceptLink(event.Token); link != "" {
		fmt.Fprintf(&body, "\nAccept the invitation here:\n%s\n", link)
	}
	fmt.Fprintf(&body, "\nThis invitation expires on %s.\n", event.Invitation.ExpiresAt.UTC().Format("2 Jan 2006 15:04 MST"))

	err := d.mailer.Send(ctx, mail.Message{
		To:      []string{event.RecipientEmail},
		Subject: fmt.Sprintf("%s invited you to their team", inviter),
		Body:    body.String(),
	})
	if errors.Is(err, mail.ErrSMTPDisabled) {
		return nil
	}
	return err
}

func (d *NotificationDispatcher) acceptLink(token string) string {
	if d.acceptURL == "" || token == "" {
		return ""
	}
	parsed, err := url.Parse(d.acceptURL)
	if err != nil {
		return ""
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func (d *NotificationDispatcher) record(event InvitationEvent, channel string, err error) {
	if err != nil {
		metrics.NotificationDispatch.WithLabelValues(channel, "error").Inc()
		d.log.Warn("invitation notification failed",
			zap.String("kind", string(event.Kind)),
			zap.String("channel", channel),
			zap.String("invitation_id", event.Invitation.ID),
			zap.Error(err),
		)
		return
	}
	metrics.NotificationDispatch.WithLabelValues(channel, "success").Inc()
}

func inviterName(user *models.User) string {
	if user == nil {
		return "A teammate"
	}
	return user.DisplayName()
}

func greetingName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return " " + name
}
