package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/models"
	apperrors "github.com/charlesng35/crewline/pkg/errors"
)

var (
	// ErrInvitationNotFound indicates the invitation id does not exist.
	ErrInvitationNotFound = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", http.StatusNotFound)
	// ErrInvitationConflict is returned when a pending invitation already exists for the e-mail.
	ErrInvitationConflict = apperrors.New("INVITATION_CONFLICT", "A pending invitation already exists for this e-mail address", http.StatusConflict)
	// ErrInvitationForbidden is returned when the actor is not the invitee.
	ErrInvitationForbidden = apperrors.New("INVITATION_FORBIDDEN", "This invitation was sent to a different e-mail address", http.StatusForbidden)
	// ErrInvitationNotInviter is returned when someone other than the inviter manages an invitation.
	ErrInvitationNotInviter = apperrors.New("INVITATION_NOT_INVITER", "Only the inviter can manage this invitation", http.StatusForbidden)
	// ErrInvitationNotVisible is returned when the actor is neither inviter nor invitee.
	ErrInvitationNotVisible = apperrors.New("INVITATION_NOT_VISIBLE", "You do not have access to this invitation", http.StatusForbidden)

	ErrInvitationAlreadyAccepted = apperrors.New("INVITATION_ALREADY_ACCEPTED", "Invitation has already been accepted", http.StatusBadRequest)
	ErrInvitationAlreadyDeclined = apperrors.New("INVITATION_ALREADY_DECLINED", "Invitation has already been declined", http.StatusBadRequest)
	ErrInvitationExpired         = apperrors.New("INVITATION_EXPIRED", "Invitation has expired", http.StatusBadRequest)
	ErrInvitationNotPending      = apperrors.New("INVITATION_NOT_PENDING", "Only pending invitations can be resent", http.StatusBadRequest)

	// ErrInvalidInvitationEmail rejects malformed invitee addresses.
	ErrInvalidInvitationEmail = apperrors.New("INVITATION_INVALID_EMAIL", "A valid e-mail address is required", http.StatusBadRequest)
	// ErrInvalidInvitationRole rejects role tags outside the allowed shape.
	ErrInvalidInvitationRole = apperrors.New("INVITATION_INVALID_ROLE", "Role must be a short lower-case tag", http.StatusBadRequest)
	// ErrSelfInvitation rejects invitations addressed to the inviter.
	ErrSelfInvitation = apperrors.New("INVITATION_SELF", "You cannot invite yourself", http.StatusBadRequest)

	// ErrUserNotFound indicates the requested account does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrMemberNotFound is returned when the id is not on the actor's roster.
	ErrMemberNotFound = apperrors.New("MEMBER_NOT_FOUND", "Team member not found", http.StatusNotFound)
	// ErrNotificationNotFound indicates the notification does not exist or belongs to someone else.
	ErrNotificationNotFound = apperrors.New("NOTIFICATION_NOT_FOUND", "Notification not found", http.StatusNotFound)
)

// resolvedInvitationError maps a non-pending status to the error a client can render.
func resolvedInvitationError(status models.InvitationStatus) error {
	switch status {
	case models.InvitationAccepted:
		return ErrInvitationAlreadyAccepted
	case models.InvitationDeclined:
		return ErrInvitationAlreadyDeclined
	case models.InvitationExpired:
		return ErrInvitationExpired
	default:
		return ErrInvitationNotPending
	}
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return pgErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		return myErr.Number == 1062
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate")
}
