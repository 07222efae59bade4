package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/pkg/crypto"
	apperrors "github.com/charlesng35/crewline/pkg/errors"
	"github.com/charlesng35/crewline/pkg/logger"
	"github.com/charlesng35/crewline/pkg/metrics"
	"github.com/charlesng35/crewline/pkg/validator"
)

const (
	defaultInvitationExpiry     = 7 * 24 * time.Hour
	defaultInvitationTokenBytes = 32

	expiryPathLazy  = "lazy"
	expiryPathSweep = "sweep"
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationExpiry overrides how long an invitation stays valid after creation or resend.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationTokenSize adjusts the random token length in bytes.
func WithInvitationTokenSize(size int) InvitationOption {
	return func(s *InvitationService) {
		if size > 0 {
			s.tokenBytes = size
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithInvitationNotifier sets the consumer of invitation events.
func WithInvitationNotifier(notifier InvitationNotifier) InvitationOption {
	return func(s *InvitationService) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// CreateInvitationInput carries the attributes accepted when inviting someone.
type CreateInvitationInput struct {
	InviterID string
	Email     string
	Name      string
	Role      string
	Notify    bool
}

// InvitationService owns the invitation state machine. Transitions commit first and hand their
// events to the notifier afterwards, so delivery problems never roll back a transition.
type InvitationService struct {
	db            *gorm.DB
	notifications *NotificationService
	notifier      InvitationNotifier
	expiry        time.Duration
	tokenBytes    int
	now           func() time.Time
	log           *zap.Logger
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(db *gorm.DB, notifications *NotificationService, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	if notifications == nil {
		return nil, errors.New("invitation service: notification service is required")
	}

	svc := &InvitationService{
		db:            db,
		notifications: notifications,
		notifier:      noopNotifier{},
		expiry:        defaultInvitationExpiry,
		tokenBytes:    defaultInvitationTokenBytes,
		now:           time.Now,
		log:           logger.WithModule("invitations"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create records a pending invitation and returns it with the raw token. Only the token digest is
// stored, so the token cannot be recovered later.
func (s *InvitationService) Create(ctx context.Context, input CreateInvitationInput) (inv *models.Invitation, token string, err error) {
	ctx = ensureContext(ctx)
	defer func() { s.observe("create", err) }()

	email, err := normaliseInvitationEmail(input.Email)
	if err != nil {
		return nil, "", err
	}

	role := strings.ToLower(strings.TrimSpace(defaultIfEmpty(input.Role, models.DefaultInvitationRole)))
	if !validator.IsRoleTag(role) {
		return nil, "", ErrInvalidInvitationRole
	}

	inviter, err := findUserByID(ctx, s.db, input.InviterID)
	if err != nil {
		return nil, "", err
	}
	if inviter.Email == email {
		return nil, "", ErrSelfInvitation
	}

	token, err = crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now().UTC()
	invitation := models.Invitation{
		Email:     email,
		Name:      strings.TrimSpace(input.Name),
		Role:      role,
		InvitedBy: inviter.ID,
		Status:    models.InvitationPending,
		ExpiresAt: now.Add(s.expiry),
		TokenHash: crypto.HashToken(token),
	}

	var expiredStale bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Invitation
		lookupErr := tx.Where("pending_email = ?", email).Take(&existing).Error
		switch {
		case lookupErr == nil:
			if !existing.IsExpiredAt(now) {
				return ErrInvitationConflict
			}
			flipped, err := expireInvitation(tx, existing.ID, now)
			if err != nil {
				return err
			}
			expiredStale = flipped
		case !errors.Is(lookupErr, gorm.ErrRecordNotFound):
			return fmt.Errorf("invitation service: check pending invitation: %w", lookupErr)
		}

		if err := tx.Create(&invitation).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrInvitationConflict
			}
			return fmt.Errorf("invitation service: create invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if expiredStale {
		metrics.InvitationsExpired.WithLabelValues(expiryPathLazy).Inc()
	}

	if input.Notify {
		s.notifier.Dispatch(ctx, []InvitationEvent{s.inviteeEvent(ctx, InvitationEventCreated, invitation, inviter, token)})
	}

	return &invitation, token, nil
}

// Accept marks the invitation accepted on behalf of the addressed invitee.
func (s *InvitationService) Accept(ctx context.Context, id string, actor *models.User, notificationID string) (inv *models.Invitation, err error) {
	defer func() { s.observe("accept", err) }()
	return s.respond(ensureContext(ctx), id, actor, notificationID, models.InvitationAccepted)
}

// Decline marks the invitation declined on behalf of the addressed invitee.
func (s *InvitationService) Decline(ctx context.Context, id string, actor *models.User, notificationID string) (inv *models.Invitation, err error) {
	defer func() { s.observe("decline", err) }()
	return s.respond(ensureContext(ctx), id, actor, notificationID, models.InvitationDeclined)
}

func (s *InvitationService) respond(ctx context.Context, id string, actor *models.User, notificationID string, target models.InvitationStatus) (*models.Invitation, error) {
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	invitation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.NormalizeEmail(actor.Email) != invitation.Email {
		return nil, ErrInvitationForbidden
	}
	if invitation.Status != models.InvitationPending {
		return nil, resolvedInvitationError(invitation.Status)
	}

	now := s.now().UTC()
	if invitation.IsExpiredAt(now) {
		return nil, s.expireOnRead(ctx, invitation.ID, now)
	}

	updates := map[string]any{
		"status":        target,
		"pending_email": nil,
		"responded_at":  now,
		"updated_at":    now,
	}
	if target == models.InvitationAccepted {
		updates["user_id"] = actor.ID
	}

	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ? AND expires_at > ?", invitation.ID, models.InvitationPending, now).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: update invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, s.lostRace(ctx, invitation.ID, now)
	}

	invitation.Status = target
	invitation.PendingEmail = nil
	invitation.RespondedAt = &now
	invitation.UpdatedAt = now
	if target == models.InvitationAccepted {
		actorID := actor.ID
		invitation.UserID = &actorID
	}

	if strings.TrimSpace(notificationID) != "" {
		if _, err := s.notifications.MarkRead(ctx, actor.ID, notificationID); err != nil && !errors.Is(err, ErrNotificationNotFound) {
			s.log.Warn("mark invitation notification read failed",
				zap.String("invitation_id", invitation.ID),
				zap.String("notification_id", notificationID),
				zap.Error(err),
			)
		}
	}

	kind := InvitationEventAccepted
	if target == models.InvitationDeclined {
		kind = InvitationEventDeclined
	}
	s.notifier.Dispatch(ctx, []InvitationEvent{{
		Kind:            kind,
		Invitation:      *invitation,
		Invitee:         actor,
		RecipientUserID: invitation.InvitedBy,
	}})

	return invitation, nil
}

// Resend extends a pending invitation, rotates its token and notifies the invitee again.
func (s *InvitationService) Resend(ctx context.Context, id string, actor *models.User) (inv *models.Invitation, err error) {
	ctx = ensureContext(ctx)
	defer func() { s.observe("resend", err) }()

	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	invitation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if invitation.InvitedBy != actor.ID {
		return nil, ErrInvitationNotInviter
	}
	if invitation.Status != models.InvitationPending {
		return nil, ErrInvitationNotPending
	}

	now := s.now().UTC()
	if invitation.IsExpiredAt(now) {
		return nil, s.expireOnRead(ctx, invitation.ID, now)
	}

	expiresAt := now.Add(s.expiry)
	if !expiresAt.After(invitation.ExpiresAt) {
		expiresAt = invitation.ExpiresAt.Add(time.Second)
	}

	token, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
		Updates(map[string]any{
			"expires_at": expiresAt,
			"token_hash": crypto.HashToken(token),
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: resend invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvitationNotPending
	}

	invitation.ExpiresAt = expiresAt
	invitation.TokenHash = crypto.HashToken(token)
	invitation.UpdatedAt = now

	s.notifier.Dispatch(ctx, []InvitationEvent{s.inviteeEvent(ctx, InvitationEventResent, *invitation, actor, token)})
	return invitation, nil
}

// Revoke deletes the invitation and every notification that references it.
func (s *InvitationService) Revoke(ctx context.Context, id string, actor *models.User) (err error) {
	ctx = ensureContext(ctx)
	defer func() { s.observe("revoke", err) }()

	if actor == nil {
		return apperrors.ErrUnauthorized
	}

	invitation, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if invitation.InvitedBy != actor.ID {
		return ErrInvitationNotInviter
	}

	var removed []models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.notifications.DeleteRelated(ctx, tx, models.RelatedTypeTeamInvitation, invitation.ID)
		if err != nil {
			return err
		}
		removed = rows

		result := tx.Where("id = ?", invitation.ID).Delete(&models.Invitation{})
		if result.Error != nil {
			return fmt.Errorf("invitation service: delete invitation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvitationNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifications.AnnounceDeleted(removed)

	event := InvitationEvent{Kind: InvitationEventRevoked, Invitation: *invitation, Inviter: actor}
	if invitation.UserID != nil {
		event.RecipientUserID = *invitation.UserID
	} else if invitee, err := findUserByEmail(ctx, s.db, invitation.Email); err == nil {
		event.RecipientUserID = invitee.ID
	}
	s.notifier.Dispatch(ctx, []InvitationEvent{event})
	return nil
}

// Get returns an invitation visible to the actor as inviter or invitee, with lazy expiry applied.
func (s *InvitationService) Get(ctx context.Context, id string, actor *models.User) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	invitation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if invitation.InvitedBy != actor.ID && invitation.Email != models.NormalizeEmail(actor.Email) {
		return nil, ErrInvitationNotVisible
	}

	invitation.Status = invitation.EffectiveStatus(s.now().UTC())
	return invitation, nil
}

// LookupByToken resolves the invitation a raw token was issued for.
func (s *InvitationService) LookupByToken(ctx context.Context, token string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvitationNotFound
	}

	var invitation models.Invitation
	if err := s.db.WithContext(ctx).
		Preload("Inviter").
		Where("token_hash = ?", crypto.HashToken(token)).
		First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation service: lookup token: %w", err)
	}

	invitation.Status = invitation.EffectiveStatus(s.now().UTC())
	return &invitation, nil
}

// ListSent returns invitations created by the actor, newest first. An empty status lists all.
func (s *InvitationService) ListSent(ctx context.Context, actorID string, status models.InvitationStatus) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	var rows []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("invited_by = ?", actorID).
		Order("created_at DESC").
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list sent invitations: %w", err)
	}

	now := s.now().UTC()
	out := rows[:0]
	for _, row := range rows {
		row.Status = row.EffectiveStatus(now)
		if status != "" && row.Status != status {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// ListReceived returns live pending invitations addressed to the actor's e-mail.
func (s *InvitationService) ListReceived(ctx context.Context, actor *models.User) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, apperrors.ErrUnauthorized
	}

	var rows []models.Invitation
	if err := s.db.WithContext(ctx).
		Preload("Inviter").
		Where("email = ? AND status = ? AND expires_at > ?", models.NormalizeEmail(actor.Email), models.InvitationPending, s.now().UTC()).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list received invitations: %w", err)
	}
	return rows, nil
}

// ExpireOverdue flips every pending invitation past its expiry to expired.
func (s *InvitationService) ExpireOverdue(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, now).
		Updates(map[string]any{
			"status":        models.InvitationExpired,
			"pending_email": nil,
			"updated_at":    now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("invitation service: expire overdue invitations: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.InvitationsExpired.WithLabelValues(expiryPathSweep).Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (s *InvitationService) load(ctx context.Context, id string) (*models.Invitation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvitationNotFound
	}

	var invitation models.Invitation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation service: load invitation: %w", err)
	}
	return &invitation, nil
}

// expireOnRead persists the lazy pending -> expired transition and returns the error to report.
func (s *InvitationService) expireOnRead(ctx context.Context, id string, now time.Time) error {
	flipped, err := expireInvitation(s.db.WithContext(ctx), id, now)
	if err != nil {
		return err
	}
	if flipped {
		metrics.InvitationsExpired.WithLabelValues(expiryPathLazy).Inc()
	}
	return ErrInvitationExpired
}

// lostRace explains why a conditional update matched nothing.
func (s *InvitationService) lostRace(ctx context.Context, id string, now time.Time) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if current.IsExpiredAt(now) {
		return s.expireOnRead(ctx, id, now)
	}
	return resolvedInvitationError(current.Status)
}

func (s *InvitationService) inviteeEvent(ctx context.Context, kind InvitationEventKind, invitation models.Invitation, inviter *models.User, token string) InvitationEvent {
	event := InvitationEvent{
		Kind:       kind,
		Invitation: invitation,
		Inviter:    inviter,
		Token:      token,
	}

	invitee, err := findUserByEmail(ctx, s.db, invitation.Email)
	switch {
	case err == nil:
		event.Invitee = invitee
		event.RecipientUserID = invitee.ID
	case errors.Is(err, ErrUserNotFound):
		event.RecipientEmail = invitation.Email
	default:
		s.log.Warn("resolve invitee account failed", zap.String("invitation_id", invitation.ID), zap.Error(err))
	}
	return event
}

func (s *InvitationService) observe(action string, err error) {
	result := "success"
	if err != nil {
		result = "error"
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && !appErr.IsInternal() {
			result = "rejected"
		}
	}
	metrics.InvitationTransitions.WithLabelValues(action, result).Inc()
}

func expireInvitation(db *gorm.DB, id string, now time.Time) (bool, error) {
	result := db.Model(&models.Invitation{}).
		Where("id = ? AND status = ?", id, models.InvitationPending).
		Updates(map[string]any{
			"status":        models.InvitationExpired,
			"pending_email": nil,
			"updated_at":    now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("invitation service: expire invitation: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func normaliseInvitationEmail(raw string) (string, error) {
	email := models.NormalizeEmail(raw)
	if email == "" {
		return "", ErrInvalidInvitationEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidInvitationEmail
	}
	return email, nil
}
