package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/pkg/logger"
	"github.com/charlesng35/crewline/pkg/metrics"
)

const (
	defaultActorRole    = "admin"
	pendingRosterPrefix = "inv_"
)

// RosterKeyKind distinguishes roster entries backed by an account from pending invitees.
type RosterKeyKind int

const (
	KeyAccount RosterKeyKind = iota + 1
	KeyPendingInvitation
)

// RosterKey identifies one person on a roster.
type RosterKey struct {
	Kind RosterKeyKind
	ID   string
}

// AccountKey keys an entry by account id.
func AccountKey(userID string) RosterKey {
	return RosterKey{Kind: KeyAccount, ID: userID}
}

// PendingInvitationKey keys an entry for an invitee who has not joined yet.
func PendingInvitationKey(invitationID string) RosterKey {
	return RosterKey{Kind: KeyPendingInvitation, ID: invitationID}
}

// String renders the wire id: the account id, or "inv_" followed by the invitation id.
func (k RosterKey) String() string {
	switch k.Kind {
	case KeyPendingInvitation:
		return pendingRosterPrefix + k.ID
	case KeyAccount:
		return k.ID
	default:
		return ""
	}
}

// RosterStatus reports whether a roster entry is an active member or a pending invitee.
type RosterStatus string

const (
	RosterActive  RosterStatus = "active"
	RosterPending RosterStatus = "pending"
)

// RosterEntry is one person on an actor's team.
type RosterEntry struct {
	Key          RosterKey    `json:"-"`
	ID           string       `json:"id"`
	FullName     string       `json:"fullName"`
	Email        string       `json:"email"`
	PhotoURL     string       `json:"photoURL,omitempty"`
	Role         string       `json:"role"`
	Status       RosterStatus `json:"status"`
	ProjectCount *int         `json:"projectCount,omitempty"`
	InvitationID string       `json:"invitationId,omitempty"`
}

// MemberDetail is a roster entry together with the member's projects.
type MemberDetail struct {
	RosterEntry
	Projects []models.Project `json:"projects"`
}

// rosterAccumulator keeps entries in first-insertion order; overwrites keep the original slot.
type rosterAccumulator struct {
	order   []RosterKey
	entries map[RosterKey]RosterEntry
}

func newRosterAccumulator() *rosterAccumulator {
	return &rosterAccumulator{entries: make(map[RosterKey]RosterEntry)}
}

func (a *rosterAccumulator) put(entry RosterEntry) {
	entry.ID = entry.Key.String()
	if _, exists := a.entries[entry.Key]; !exists {
		a.order = append(a.order, entry.Key)
	}
	a.entries[entry.Key] = entry
}

func (a *rosterAccumulator) values() []RosterEntry {
	out := make([]RosterEntry, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, a.entries[key])
	}
	return out
}

// RosterOption customises the RosterService.
type RosterOption func(*RosterService)

// WithRosterClock injects a custom clock primarily for testing.
func WithRosterClock(clock func() time.Time) RosterOption {
	return func(s *RosterService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RosterService computes the effective team of an actor from invitation records.
type RosterService struct {
	db  *gorm.DB
	now func() time.Time
	log *zap.Logger
}

// NewRosterService constructs a RosterService.
func NewRosterService(db *gorm.DB, opts ...RosterOption) (*RosterService, error) {
	if db == nil {
		return nil, errors.New("roster service: db is required")
	}
	svc := &RosterService{
		db:  db,
		now: time.Now,
		log: logger.WithModule("roster"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ResolveRoster returns the deduplicated team of actorID: the actor, accounts that accepted the
// actor's invitations, inviters whose invitations the actor accepted, then live pending invitees.
// Accepted invitations whose account cannot be found are skipped.
func (s *RosterService) ResolveRoster(ctx context.Context, actorID string) ([]RosterEntry, error) {
	ctx = ensureContext(ctx)

	actor, err := findUserByID(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}

	acc := newRosterAccumulator()
	acc.put(accountEntry(actor, defaultIfEmpty(actor.Role, defaultActorRole)))

	if err := s.addAcceptedInvitees(ctx, acc, actor); err != nil {
		return nil, err
	}
	if err := s.addInviters(ctx, acc, actor); err != nil {
		return nil, err
	}
	if err := s.addPendingInvitees(ctx, acc, actor); err != nil {
		return nil, err
	}

	entries := acc.values()
	s.attachProjectCounts(ctx, entries)
	metrics.RosterSize.Observe(float64(len(entries)))
	return entries, nil
}

// ResolveMember returns one account from the actor's roster along with its projects.
func (s *RosterService) ResolveMember(ctx context.Context, actorID, memberID string) (*MemberDetail, error) {
	ctx = ensureContext(ctx)

	entries, err := s.ResolveRoster(ctx, actorID)
	if err != nil {
		return nil, err
	}

	memberID = strings.TrimSpace(memberID)
	for _, entry := range entries {
		if entry.Key != AccountKey(memberID) {
			continue
		}
		projects, err := s.projectsFor(ctx, memberID)
		if err != nil {
			return nil, err
		}
		count := len(projects)
		entry.ProjectCount = &count
		return &MemberDetail{RosterEntry: entry, Projects: projects}, nil
	}
	return nil, ErrMemberNotFound
}

// addAcceptedInvitees inserts accounts that accepted invitations sent by actor, backfilling
// user_id on invitations that were matched by e-mail only.
func (s *RosterService) addAcceptedInvitees(ctx context.Context, acc *rosterAccumulator, actor *models.User) error {
	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("invited_by = ? AND status = ?", actor.ID, models.InvitationAccepted).
		Order("created_at ASC").
		Order("id ASC").
		Find(&invitations).Error; err != nil {
		return fmt.Errorf("roster service: list accepted invitations: %w", err)
	}
	if len(invitations) == 0 {
		return nil
	}

	var ids, emails []string
	for _, inv := range invitations {
		if inv.UserID != nil && *inv.UserID != "" {
			ids = append(ids, *inv.UserID)
		} else {
			emails = append(emails, inv.Email)
		}
	}

	byID, err := s.usersByID(ctx, ids)
	if err != nil {
		return err
	}
	byEmail, err := s.usersByEmail(ctx, emails)
	if err != nil {
		return err
	}

	for _, inv := range invitations {
		var user *models.User
		if inv.UserID != nil && *inv.UserID != "" {
			user = byID[*inv.UserID]
		} else if user = byEmail[inv.Email]; user != nil {
			s.backfillUserID(ctx, inv.ID, user.ID)
		}

		if user == nil || user.ID == actor.ID {
			continue
		}
		acc.put(accountEntry(user, inv.Role))
	}
	return nil
}

// addInviters inserts the senders of invitations the actor accepted.
func (s *RosterService) addInviters(ctx context.Context, acc *rosterAccumulator, actor *models.User) error {
	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("email = ? AND status = ? AND invited_by <> ?", actor.Email, models.InvitationAccepted, actor.ID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&invitations).Error; err != nil {
		return fmt.Errorf("roster service: list received invitations: %w", err)
	}
	if len(invitations) == 0 {
		return nil
	}

	ids := make([]string, 0, len(invitations))
	for _, inv := range invitations {
		ids = append(ids, inv.InvitedBy)
	}
	inviters, err := s.usersByID(ctx, ids)
	if err != nil {
		return err
	}

	for _, inv := range invitations {
		inviter := inviters[inv.InvitedBy]
		if inviter == nil {
			continue
		}
		acc.put(accountEntry(inviter, defaultIfEmpty(inviter.Role, defaultActorRole)))
	}
	return nil
}

// addPendingInvitees inserts synthetic entries for live pending invitations sent by actor.
func (s *RosterService) addPendingInvitees(ctx context.Context, acc *rosterAccumulator, actor *models.User) error {
	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("invited_by = ? AND status = ? AND expires_at > ?", actor.ID, models.InvitationPending, s.now().UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Find(&invitations).Error; err != nil {
		return fmt.Errorf("roster service: list pending invitations: %w", err)
	}

	for _, inv := range invitations {
		acc.put(RosterEntry{
			Key:          PendingInvitationKey(inv.ID),
			FullName:     defaultIfEmpty(inv.Name, inv.Email),
			Email:        inv.Email,
			Role:         inv.Role,
			Status:       RosterPending,
			InvitationID: inv.ID,
		})
	}
	return nil
}

// backfillUserID links an accepted invitation to the account discovered by e-mail. It only writes
// when user_id is still empty and never fails the caller.
func (s *RosterService) backfillUserID(ctx context.Context, invitationID, userID string) {
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND user_id IS NULL", invitationID).
		Update("user_id", userID)
	if result.Error != nil {
		metrics.RosterBackfills.WithLabelValues("error").Inc()
		s.log.Warn("backfill invitation user id failed",
			zap.String("invitation_id", invitationID),
			zap.String("user_id", userID),
			zap.Error(result.Error),
		)
		return
	}
	if result.RowsAffected > 0 {
		metrics.RosterBackfills.WithLabelValues("success").Inc()
	}
}

func (s *RosterService) usersByID(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("roster service: load accounts: %w", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (s *RosterService) usersByEmail(ctx context.Context, emails []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(emails))
	if len(emails) == 0 {
		return out, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("email IN ?", emails).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("roster service: load accounts by email: %w", err)
	}
	for i := range users {
		out[users[i].Email] = &users[i]
	}
	return out, nil
}

type projectCountRow struct {
	UserID string
	Total  int
}

// attachProjectCounts fills ProjectCount for account entries. Counting is decorative, so a
// failure is logged and the counts are left empty.
func (s *RosterService) attachProjectCounts(ctx context.Context, entries []RosterEntry) {
	var ids []string
	for _, entry := range entries {
		if entry.Key.Kind == KeyAccount {
			ids = append(ids, entry.Key.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	var owned, joined []projectCountRow
	if err := s.db.WithContext(ctx).Model(&models.Project{}).
		Select("owner_id AS user_id, COUNT(*) AS total").
		Where("owner_id IN ?", ids).
		Group("owner_id").
		Scan(&owned).Error; err != nil {
		s.log.Warn("count owned projects failed", zap.Error(err))
		return
	}
	if err := s.db.WithContext(ctx).Table("project_members").
		Select("project_members.user_id AS user_id, COUNT(*) AS total").
		Joins("JOIN projects ON projects.id = project_members.project_id").
		Where("project_members.user_id IN ? AND projects.owner_id <> project_members.user_id", ids).
		Group("project_members.user_id").
		Scan(&joined).Error; err != nil {
		s.log.Warn("count member projects failed", zap.Error(err))
		return
	}

	counts := make(map[string]int, len(ids))
	for _, row := range owned {
		counts[row.UserID] += row.Total
	}
	for _, row := range joined {
		counts[row.UserID] += row.Total
	}

	for i := range entries {
		if entries[i].Key.Kind != KeyAccount {
			continue
		}
		count := counts[entries[i].Key.ID]
		entries[i].ProjectCount = &count
	}
}

func (s *RosterService) projectsFor(ctx context.Context, userID string) ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? OR id IN (?)", userID,
			s.db.Table("project_members").Select("project_id").Where("user_id = ?", userID)).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("roster service: load member projects: %w", err)
	}
	return projects, nil
}

func accountEntry(user *models.User, role string) RosterEntry {
	return RosterEntry{
		Key:      AccountKey(user.ID),
		FullName: user.DisplayName(),
		Email:    user.Email,
		PhotoURL: user.PhotoURL,
		Role:     defaultIfEmpty(role, models.DefaultInvitationRole),
		Status:   RosterActive,
	}
}
