package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCoupleCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateCoupleCode()
		require.NoError(t, err)
		require.Len(t, code, models.CoupleCodeLength)
		for _, r := range code {
			assert.Contains(t, models.CoupleCodeAlphabet, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestNormalizeCode(t *testing.T) {
	code, err := NormalizeCode("  ab12cd ")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", code)

	for _, bad := range []string{"", "AB12C", "AB12CDE", "AB-2CD", "ÄB12CD"} {
		_, err := NormalizeCode(bad)
		assert.ErrorIs(t, err, apperrors.ErrValidationFailed, bad)
	}
}

func TestCreateRelationship(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rel, initiator, err := env.pairing.CreateRelationship(ctx, " Alex ", date(2024, 1, 1))
	require.NoError(t, err)

	assert.NotEmpty(t, rel.ID)
	assert.Len(t, rel.CoupleCode, models.CoupleCodeLength)
	assert.Empty(t, rel.PartnerID)
	assert.True(t, rel.IsActive)
	assert.Equal(t, models.StateWaitingForPartner, rel.State())
	assert.Equal(t, initiator.ID, rel.InitiatorID)
	assert.Equal(t, "Alex", initiator.Name)
	assert.Equal(t, models.RoleInitiator, initiator.Role)

	stored, err := env.pairing.GetRelationship(ctx, rel.ID)
	require.NoError(t, err)
	assert.True(t, stored.StartDate.Equal(date(2024, 1, 1)))

	p, err := env.pairing.GetParticipant(ctx, initiator.ID)
	require.NoError(t, err)
	assert.Equal(t, rel.ID, p.RelationshipID)
}

func TestCreateRelationshipValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.pairing.CreateRelationship(ctx, "  ", date(2024, 1, 1))
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, _, err = env.pairing.CreateRelationship(ctx, "Alex", time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
}

func TestRedeemCodeOnceThenAlreadyRedeemed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pairing.NewCode = fixedCode("AB12CD")

	rel, _, err := env.pairing.CreateRelationship(ctx, "Alex", date(2024, 1, 1))
	require.NoError(t, err)

	redeemed, err := env.pairing.RedeemCode(ctx, "AB12CD", "Sam")
	require.NoError(t, err)
	assert.Equal(t, rel.ID, redeemed.ID)
	assert.Equal(t, models.StateActive, redeemed.State())

	sam, err := env.pairing.GetParticipant(ctx, redeemed.PartnerID)
	require.NoError(t, err)
	assert.Equal(t, "Sam", sam.Name)
	assert.Equal(t, models.RolePartner, sam.Role)

	_, err = env.pairing.RedeemCode(ctx, "ab12cd", "Jordan")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyRedeemed)

	after, err := env.pairing.GetRelationship(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, sam.ID, after.PartnerID, "partnerId never changes once set")
}

func TestRedeemCodeNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.pairing.RedeemCode(context.Background(), "ZZZZZZ", "Sam")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRedeemCodeIgnoresInactiveRelationship(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pairing.NewCode = fixedCode("QWERTY")

	rel, _, err := env.pairing.CreateRelationship(ctx, "Alex", date(2024, 1, 1))
	require.NoError(t, err)
	require.NoError(t, env.pairing.Deactivate(ctx, rel.ID))

	_, err = env.pairing.RedeemCode(ctx, "qwerty", "Sam")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRedeemCodeCollisionPicksOldestOpenRelationship(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pairing.NewCode = fixedCode("SAME11")

	first, _, err := env.pairing.CreateRelationship(ctx, "Alex", date(2024, 1, 1))
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	second, _, err := env.pairing.CreateRelationship(ctx, "Robin", date(2024, 3, 1))
	require.NoError(t, err)

	got, err := env.pairing.RedeemCode(ctx, "SAME11", "Sam")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = env.pairing.RedeemCode(ctx, "SAME11", "Kai")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = env.pairing.RedeemCode(ctx, "SAME11", "Lee")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyRedeemed)
}

func TestRedeemCodeConcurrentExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pairing.NewCode = fixedCode("RACE01")

	rel, _, err := env.pairing.CreateRelationship(ctx, "Alex", date(2024, 1, 1))
	require.NoError(t, err)

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.pairing.RedeemCode(ctx, "RACE01", "Sam")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrAlreadyRedeemed):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)

	final, err := env.pairing.GetRelationship(ctx, rel.ID)
	require.NoError(t, err)
	var partners []models.Participant
	require.NoError(t, env.store.Query(ctx, models.ParticipantsTable, "role", models.RolePartner, &partners))
	require.Len(t, partners, 1, "losing redemptions discard their profile")
	assert.Equal(t, partners[0].ID, final.PartnerID)
}

func TestRedeemCodeLinkFailureCanBeRetried(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pairing.NewCode = fixedCode("LINK42")

	rel, _, err := env.pairing.CreateRelationship(ctx, "Alex", date(2024, 1, 1))
	require.NoError(t, err)

	env.store.set(func(f *flakyStore) {
		f.failUpdate = func(path string, _ map[string]any) error {
			if strings.HasPrefix(path, models.RelationshipsTable+"/") {
				return apperrors.Unavailable("update", errStoreDown)
			}
			return nil
		}
	})

	_, err = env.pairing.RedeemCode(ctx, "LINK42", "Sam")
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.True(t, apperrors.Retryable(err))
	assert.Equal(t, rel.ID, linkErr.RelationshipID)

	// The profile survived the failed link.
	sam, err := env.pairing.GetParticipant(ctx, linkErr.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, "Sam", sam.Name)

	env.store.set(func(f *flakyStore) { f.failUpdate = nil })

	linked, err := env.pairing.LinkPartner(ctx, linkErr.RelationshipID, linkErr.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, sam.ID, linked.PartnerID)

	again, err := env.pairing.LinkPartner(ctx, linkErr.RelationshipID, linkErr.ParticipantID)
	require.NoError(t, err, "relinking the same partner is idempotent")
	assert.Equal(t, sam.ID, again.PartnerID)
}

func TestLinkPartnerRejectsForeignParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rel, initiator, err := env.pairing.CreateRelationship(ctx, "Alex", date(2024, 1, 1))
	require.NoError(t, err)

	_, err = env.pairing.LinkPartner(ctx, rel.ID, initiator.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, err = env.pairing.LinkPartner(ctx, rel.ID, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateNotificationHandle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, initiator, err := env.pairing.CreateRelationship(ctx, "Alex", date(2024, 1, 1))
	require.NoError(t, err)

	require.NoError(t, env.pairing.UpdateNotificationHandle(ctx, initiator.ID, "device-token-1"))
	p, err := env.pairing.GetParticipant(ctx, initiator.ID)
	require.NoError(t, err)
	assert.Equal(t, "device-token-1", p.NotificationHandle)

	require.NoError(t, env.pairing.UpdateNotificationHandle(ctx, initiator.ID, ""))
	p, err = env.pairing.GetParticipant(ctx, initiator.ID)
	require.NoError(t, err)
	assert.Empty(t, p.NotificationHandle)

	err = env.pairing.UpdateNotificationHandle(ctx, "ghost", "x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rel, _, err := env.pairing.CreateRelationship(ctx, "Alex", date(2024, 1, 1))
	require.NoError(t, err)
	require.NoError(t, env.pairing.Deactivate(ctx, rel.ID))

	got, err := env.pairing.GetRelationship(ctx, rel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateInactive, got.State())

	active, err := env.pairing.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, env.pairing.Deactivate(ctx, "ghost"), apperrors.ErrNotFound)
}
