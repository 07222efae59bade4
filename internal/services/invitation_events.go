package services

import (
	"context"

	"github.com/charlesng35/crewline/internal/models"
)

// InvitationEventKind names a side effect requested by an invitation transition.
type InvitationEventKind string

const (
	InvitationEventCreated  InvitationEventKind = "invitation.created"
	InvitationEventResent   InvitationEventKind = "invitation.resent"
	InvitationEventAccepted InvitationEventKind = "invitation.accepted"
	InvitationEventDeclined InvitationEventKind = "invitation.declined"
	InvitationEventRevoked  InvitationEventKind = "invitation.revoked"
)

// InvitationEvent is an outbox entry produced once the owning transition has committed.
//
// RecipientUserID is set when the party to notify has an account; otherwise RecipientEmail
// addresses an invitee without one. Token carries the raw invitation token for e-mail links and
// is only present on created and resent events.
type InvitationEvent struct {
	Kind            InvitationEventKind
	Invitation      models.Invitation
	Inviter         *models.User
	Invitee         *models.User
	RecipientUserID string
	RecipientEmail  string
	Token           string
}

// InvitationNotifier consumes invitation events. Implementations are best-effort: errors are
// reported through their own logging and never surface to the caller.
type InvitationNotifier interface {
	Dispatch(ctx context.Context, events []InvitationEvent)
}

// InvitationNotifierFunc adapts a function to InvitationNotifier.
type InvitationNotifierFunc func(ctx context.Context, events []InvitationEvent)

// Dispatch calls f(ctx, events).
func (f InvitationNotifierFunc) Dispatch(ctx context.Context, events []InvitationEvent) {
	f(ctx, events)
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(context.Context, []InvitationEvent) {}
