package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/pkg/metrics"
)

func findEntry(entries []RosterEntry, key RosterKey) *RosterEntry {
	for i := range entries {
		if entries[i].Key == key {
			return &entries[i]
		}
	}
	return nil
}

func entryIDs(entries []RosterEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	return ids
}

func insertAcceptedInvitation(t *testing.T, f *invitationFixture, inviter *models.User, email, role string, userID *string) *models.Invitation {
	t.Helper()
	inv := &models.Invitation{
		Email:     email,
		Role:      role,
		InvitedBy: inviter.ID,
		UserID:    userID,
		Status:    models.InvitationAccepted,
		ExpiresAt: f.clock.Now().Add(7 * 24 * time.Hour),
		TokenHash: "hash-" + email + "-" + inviter.ID,
	}
	require.NoError(t, f.db.Create(inv).Error)
	return inv
}

func TestRosterKeyString(t *testing.T) {
	require.Equal(t, "u-1", AccountKey("u-1").String())
	require.Equal(t, "inv_i-1", PendingInvitationKey("i-1").String())
	require.Empty(t, RosterKey{}.String())
	require.NotEqual(t, AccountKey("x"), PendingInvitationKey("x"))
}

func TestRosterAccumulatorKeepsFirstPosition(t *testing.T) {
	acc := newRosterAccumulator()
	acc.put(RosterEntry{Key: AccountKey("a"), Role: "admin"})
	acc.put(RosterEntry{Key: AccountKey("b"), Role: "member"})
	acc.put(RosterEntry{Key: AccountKey("a"), Role: "owner"})

	values := acc.values()
	require.Equal(t, []string{"a", "b"}, entryIDs(values))
	require.Equal(t, "owner", values[0].Role)
}

func TestRosterSelfInclusion(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "")
	owner := createUser(t, f.db, "owner@x.com", "", "owner")
	ctx := context.Background()

	entries, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, alice.ID, entries[0].ID)
	require.Equal(t, "admin", entries[0].Role)
	require.Equal(t, RosterActive, entries[0].Status)
	require.Equal(t, "Alice", entries[0].FullName)

	entries, err = f.roster.ResolveRoster(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, "owner", entries[0].Role)
	require.Equal(t, "owner@x.com", entries[0].FullName)

	_, err = f.roster.ResolveRoster(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRosterAcceptScenarioIsSymmetric(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "admin")
	bob := createUser(t, f.db, "bob@x.com", "Bob", "")
	ctx := context.Background()

	inv := f.invite(t, alice, "bob@x.com")
	_, err := f.invitations.Accept(ctx, inv.ID, bob, "")
	require.NoError(t, err)

	aliceRoster, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID, bob.ID}, entryIDs(aliceRoster))
	bobEntry := findEntry(aliceRoster, AccountKey(bob.ID))
	require.Equal(t, "member", bobEntry.Role)
	require.Equal(t, RosterActive, bobEntry.Status)
	require.Empty(t, bobEntry.InvitationID)

	bobRoster, err := f.roster.ResolveRoster(ctx, bob.ID)
	require.NoError(t, err)
	require.Equal(t, []string{bob.ID, alice.ID}, entryIDs(bobRoster))
	aliceEntry := findEntry(bobRoster, AccountKey(alice.ID))
	require.Equal(t, "admin", aliceEntry.Role)
	require.Equal(t, RosterActive, aliceEntry.Status)
}

func TestRosterBackfillsUserIDOnce(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "admin")
	bob := createUser(t, f.db, "bob@x.com", "Bob", "member")
	ctx := context.Background()

	inv := insertAcceptedInvitation(t, f, alice, "bob@x.com", "editor", nil)

	backfills := metrics.RosterBackfills.WithLabelValues("success")
	before := testutil.ToFloat64(backfills)

	first, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(backfills))

	stored := f.reload(t, inv.ID)
	require.NotNil(t, stored.UserID)
	require.Equal(t, bob.ID, *stored.UserID)
	require.Equal(t, "editor", findEntry(first, AccountKey(bob.ID)).Role)

	second, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(backfills))
	require.ElementsMatch(t, first, second)
}

func TestRosterSkipsUnresolvableAcceptedInvitation(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "admin")
	ctx := context.Background()

	insertAcceptedInvitation(t, f, alice, "ghost@x.com", "member", nil)
	missing := "deleted-account"
	insertAcceptedInvitation(t, f, alice, "gone@x.com", "member", &missing)

	entries, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID}, entryIDs(entries))

	// Resolution re-reads by e-mail, so a later sign-up makes the member visible.
	ghost := createUser(t, f.db, "ghost@x.com", "Ghost", "")
	entries, err = f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID, ghost.ID}, entryIDs(entries))
}

func TestRosterPendingInvitees(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "admin")
	bob := createUser(t, f.db, "bob@x.com", "Bob", "member")
	ctx := context.Background()

	stale := f.invite(t, alice, "stale@x.com")
	f.clock.Advance(6 * 24 * time.Hour)

	named, _, err := f.invitations.Create(ctx, CreateInvitationInput{InviterID: alice.ID, Email: "dana@x.com", Name: "Dana", Role: "admin"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	unnamed := f.invite(t, alice, "erin@x.com")
	f.clock.Advance(time.Minute)
	accepted := f.invite(t, alice, bob.Email)
	_, err = f.invitations.Accept(ctx, accepted.ID, bob, "")
	require.NoError(t, err)

	f.clock.Advance(2 * 24 * time.Hour)

	entries, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID, bob.ID, "inv_" + named.ID, "inv_" + unnamed.ID}, entryIDs(entries))
	require.Nil(t, findEntry(entries, PendingInvitationKey(stale.ID)))

	dana := findEntry(entries, PendingInvitationKey(named.ID))
	require.Equal(t, "Dana", dana.FullName)
	require.Equal(t, "dana@x.com", dana.Email)
	require.Equal(t, "admin", dana.Role)
	require.Equal(t, RosterPending, dana.Status)
	require.Equal(t, named.ID, dana.InvitationID)
	require.Nil(t, dana.ProjectCount)

	erin := findEntry(entries, PendingInvitationKey(unnamed.ID))
	require.Equal(t, "erin@x.com", erin.FullName)
}

func TestRosterMutualInvitationsUseInviterRole(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "admin")
	bob := createUser(t, f.db, "bob@x.com", "Bob", "")
	carol := createUser(t, f.db, "carol@x.com", "Carol", "lead")
	ctx := context.Background()

	insertAcceptedInvitation(t, f, alice, bob.Email, "viewer", &bob.ID)
	insertAcceptedInvitation(t, f, alice, carol.Email, "member", &carol.ID)
	insertAcceptedInvitation(t, f, bob, alice.Email, "member", &alice.ID)

	entries, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID, bob.ID, carol.ID}, entryIDs(entries))
	// The reverse edge is applied last and keeps the slot from the forward edge.
	require.Equal(t, "admin", findEntry(entries, AccountKey(bob.ID)).Role)
	require.Equal(t, "member", findEntry(entries, AccountKey(carol.ID)).Role)

	// Carol accepted from Alice, so she sees Alice with Alice's own role.
	carolRoster, err := f.roster.ResolveRoster(ctx, carol.ID)
	require.NoError(t, err)
	require.Equal(t, []string{carol.ID, alice.ID}, entryIDs(carolRoster))
	require.Equal(t, "admin", carolRoster[1].Role)
}

func TestRosterActorNeverListedTwice(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "admin")
	ctx := context.Background()

	insertAcceptedInvitation(t, f, alice, "alias@x.com", "member", &alice.ID)

	entries, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, []string{alice.ID}, entryIDs(entries))
	require.Equal(t, "admin", entries[0].Role)
}

func TestRosterProjectCounts(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "admin")
	bob := createUser(t, f.db, "bob@x.com", "Bob", "member")
	ctx := context.Background()

	owned := models.Project{Name: "Launch", OwnerID: alice.ID}
	require.NoError(t, f.db.Create(&owned).Error)
	shared := models.Project{Name: "Shared", OwnerID: alice.ID}
	require.NoError(t, f.db.Create(&shared).Error)
	require.NoError(t, f.db.Model(&shared).Association("Members").Append(bob, alice))

	insertAcceptedInvitation(t, f, alice, bob.Email, "member", &bob.ID)

	entries, err := f.roster.ResolveRoster(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, 2, *findEntry(entries, AccountKey(alice.ID)).ProjectCount)
	require.Equal(t, 1, *findEntry(entries, AccountKey(bob.ID)).ProjectCount)

	member, err := f.roster.ResolveMember(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Equal(t, bob.ID, member.ID)
	require.Len(t, member.Projects, 1)
	require.Equal(t, "Shared", member.Projects[0].Name)
	require.Equal(t, 1, *member.ProjectCount)

	self, err := f.roster.ResolveMember(ctx, alice.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, self.Projects, 2)
}

func TestRosterResolveMemberNotOnRoster(t *testing.T) {
	f := newInvitationFixture(t)
	alice := createUser(t, f.db, "alice@x.com", "Alice", "admin")
	stranger := createUser(t, f.db, "stranger@x.com", "Stranger", "member")
	ctx := context.Background()

	pending := f.invite(t, alice, "pending@x.com")

	_, err := f.roster.ResolveMember(ctx, alice.ID, stranger.ID)
	require.ErrorIs(t, err, ErrMemberNotFound)

	_, err = f.roster.ResolveMember(ctx, alice.ID, pending.ID)
	require.ErrorIs(t, err, ErrMemberNotFound)
}
