package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordReactionUpsertsAndReplaces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := saveMessage(t, env, "r1", 1, "January")

	firstAt := date(2024, 1, 5)
	status, err := env.tracker.RecordReaction(ctx, msg.ID, "❤️", firstAt)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, status.MessageID)
	assert.Equal(t, "r1", status.RelationshipID)
	assert.True(t, status.IsRead)
	require.NotNil(t, status.ReadAt)
	assert.True(t, status.ReadAt.Equal(firstAt))
	assert.Equal(t, "❤️", status.Reaction)

	status, err = env.tracker.RecordReaction(ctx, msg.ID, "😂", date(2024, 1, 9))
	require.NoError(t, err)
	assert.Equal(t, "😂", status.Reaction, "later reactions replace earlier ones")
	assert.True(t, status.ReadAt.Equal(firstAt), "readAt keeps the first read")
}

func TestRecordReactionDoesNotTouchMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := saveMessage(t, env, "r1", 1, "January")

	_, err := env.tracker.RecordReaction(ctx, msg.ID, "👍", date(2024, 1, 5))
	require.NoError(t, err)

	stored, err := env.messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(msg.UpdatedAt))
	assert.False(t, stored.IsDelivered)
}

func TestRecordReactionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := saveMessage(t, env, "r1", 1, "January")

	_, err := env.tracker.RecordReaction(ctx, msg.ID, "  ", date(2024, 1, 5))
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, err = env.tracker.RecordReaction(ctx, msg.ID, strings.Repeat("x", maxReactionLength+1), date(2024, 1, 5))
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)

	_, err = env.tracker.RecordReaction(ctx, "ghost", "👍", date(2024, 1, 5))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMarkReadAndComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	msg := saveMessage(t, env, "r1", 1, "January")

	_, err := env.tracker.Get(ctx, msg.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "statuses are created lazily")

	status, err := env.tracker.SetComment(ctx, msg.ID, "  so sweet ")
	require.NoError(t, err)
	assert.Equal(t, "so sweet", status.Comment)
	assert.False(t, status.IsRead)
	assert.Nil(t, status.ReadAt)

	status, err = env.tracker.MarkRead(ctx, msg.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, status.IsRead)
	require.NotNil(t, status.ReadAt)
	assert.True(t, status.ReadAt.Equal(env.clock.Now()))
	assert.Equal(t, "so sweet", status.Comment)

	status, err = env.tracker.SetComment(ctx, msg.ID, "")
	require.NoError(t, err)
	assert.Empty(t, status.Comment)
	assert.True(t, status.IsRead)
}

func TestTrackerListForRelationship(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m1 := saveMessage(t, env, "r1", 1, "January")
	m2 := saveMessage(t, env, "r1", 2, "February")
	other := saveMessage(t, env, "r2", 1, "Other")

	for _, id := range []string{m1.ID, other.ID} {
		_, err := env.tracker.MarkRead(ctx, id, date(2024, 2, 1))
		require.NoError(t, err)
	}

	statuses, err := env.tracker.ListForRelationship(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, statuses, 1)
	assert.Contains(t, statuses, m1.ID)
	assert.NotContains(t, statuses, m2.ID)
}

func TestFeedSnapshotJoinsStatuses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m1 := saveMessage(t, env, "r1", 1, "January")
	m2 := saveMessage(t, env, "r1", 2, "February")
	require.NoError(t, env.messages.SetDelivered(ctx, m1.ID, true, date(2024, 1, 1)))
	_, err := env.tracker.RecordReaction(ctx, m1.ID, "🥰", date(2024, 1, 2))
	require.NoError(t, err)

	all, err := env.feedSvc.Snapshot(ctx, "r1", FeedOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, m1.ID, all[0].Message.ID)
	require.NotNil(t, all[0].Status)
	assert.Equal(t, "🥰", all[0].Status.Reaction)
	assert.Equal(t, m2.ID, all[1].Message.ID)
	assert.Nil(t, all[1].Status)

	delivered, err := env.feedSvc.Snapshot(ctx, "r1", FeedOptions{DeliveredOnly: true})
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.Equal(t, m1.ID, delivered[0].Message.ID)
}

func TestFeedSubscribeFollowsDeliveriesAndReactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rel := pairedRelationship(t, env, date(2024, 1, 1))
	msg := saveMessage(t, env, rel.ID, 1, "January")

	sub := env.feedSvc.Subscribe(ctx, rel.ID, FeedOptions{DeliveredOnly: true})
	defer sub.Close()
	assert.Empty(t, nextUpdate(t, sub))

	_, err := env.scheduler.Tick(ctx, rel.ID, date(2024, 1, 2))
	require.NoError(t, err)

	var entries []FeedEntry
	require.Eventually(t, func() bool {
		select {
		case entries = <-sub.Updates():
			return len(entries) == 1
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, msg.ID, entries[0].Message.ID)

	_, err = env.tracker.RecordReaction(ctx, msg.ID, "💖", date(2024, 1, 3))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		select {
		case entries = <-sub.Updates():
			return len(entries) == 1 && entries[0].Status != nil && entries[0].Status.Reaction == "💖"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, env.feed.Len(), "one listener per collection")
	sub.Close()
	assert.Equal(t, 0, env.feed.Len())
}

func TestFeedEntryStatusesAreIndependentCopies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m1 := saveMessage(t, env, "r1", 1, "a")
	m2 := saveMessage(t, env, "r1", 2, "b")
	for _, m := range []*models.Message{m1, m2} {
		_, err := env.tracker.RecordReaction(ctx, m.ID, m.Title, date(2024, 1, 2))
		require.NoError(t, err)
	}

	entries, err := env.feedSvc.Snapshot(ctx, "r1", FeedOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Status.Reaction)
	assert.Equal(t, "b", entries[1].Status.Reaction)
}
