package realtime

// Stream names exposed over the websocket endpoint.
const (
	StreamNotifications = "notifications"
	StreamInvitations   = "team.invitations"
)

// Events published on the notification stream.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationRead    = "notification.read"
	EventNotificationDeleted = "notification.deleted"
	EventInvitationChanged   = "invitation.changed"
)

// DefaultStreams are subscribed for every connection unless the client asks otherwise.
var DefaultStreams = []string{StreamNotifications, StreamInvitations}

// AllowedStreams returns the set of streams a client may subscribe to.
func AllowedStreams() map[string]struct{} {
	allowed := make(map[string]struct{}, len(DefaultStreams))
	for _, stream := range DefaultStreams {
		allowed[stream] = struct{}{}
	}
	return allowed
}
