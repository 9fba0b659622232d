package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"anniversary_server/apperrors"
	"anniversary_server/clock"
	"anniversary_server/models"
)

const (
	maxReactionLength = 32
	maxCommentLength  = 1000
)

// DeliveryStatusTracker records read state, reactions and comments. Each
// status lives at its own path keyed by message id, so none of these writes
// touch the message record the scheduler flips.
type DeliveryStatusTracker struct {
	Store    KeyPathStore
	Messages *MessageStore
	Clock    clock.Clock
}

func NewDeliveryStatusTracker(store KeyPathStore, messages *MessageStore, clk clock.Clock) *DeliveryStatusTracker {
	if clk == nil {
		clk = clock.System()
	}
	return &DeliveryStatusTracker{Store: store, Messages: messages, Clock: clk}
}

// RecordReaction marks the message read and replaces its reaction. readAt
// is kept from the first read.
func (t *DeliveryStatusTracker) RecordReaction(ctx context.Context, messageID, reaction string, at time.Time) (*models.DeliveryStatus, error) {
	reaction = strings.TrimSpace(reaction)
	if reaction == "" {
		return nil, apperrors.Validation("record reaction", "reaction is required")
	}
	if utf8.RuneCountInString(reaction) > maxReactionLength {
		return nil, apperrors.Validation("record reaction", "reaction is longer than %d characters", maxReactionLength)
	}
	return t.update(ctx, "record reaction", messageID, at, map[string]any{
		"isRead":   true,
		"reaction": reaction,
	}, true)
}

// MarkRead sets isRead without touching the reaction.
func (t *DeliveryStatusTracker) MarkRead(ctx context.Context, messageID string, at time.Time) (*models.DeliveryStatus, error) {
	return t.update(ctx, "mark read", messageID, at, map[string]any{"isRead": true}, true)
}

// SetComment replaces the comment. An empty comment removes it.
func (t *DeliveryStatusTracker) SetComment(ctx context.Context, messageID, comment string) (*models.DeliveryStatus, error) {
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, apperrors.Validation("set comment", "comment is longer than %d characters", maxCommentLength)
	}
	return t.update(ctx, "set comment", messageID, time.Time{}, map[string]any{"comment": nilIfEmpty(comment)}, false)
}

func (t *DeliveryStatusTracker) update(ctx context.Context, op, messageID string, at time.Time, fields map[string]any, read bool) (*models.DeliveryStatus, error) {
	if messageID == "" {
		return nil, apperrors.Validation(op, "message id is required")
	}
	msg, err := t.Messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}

	fields["updatedAt"] = t.Clock.Now()
	defaults := map[string]any{
		"messageId":      msg.ID,
		"relationshipId": msg.RelationshipID,
	}
	if read {
		if at.IsZero() {
			at = t.Clock.Now()
		}
		defaults["readAt"] = at
	} else {
		defaults["isRead"] = false
	}

	if err := t.Store.UpdateFields(ctx, ItemPath(models.DeliveryStatusTable, messageID), fields, WithDefaults(defaults)); err != nil {
		return nil, apperrors.Unavailable(op, err)
	}
	return t.Get(ctx, messageID)
}

func (t *DeliveryStatusTracker) Get(ctx context.Context, messageID string) (*models.DeliveryStatus, error) {
	if messageID == "" {
		return nil, apperrors.Validation("get delivery status", "message id is required")
	}
	var status models.DeliveryStatus
	found, err := t.Store.Get(ctx, ItemPath(models.DeliveryStatusTable, messageID), &status)
	if err != nil {
		return nil, apperrors.Unavailable("get delivery status", err)
	}
	if !found {
		return nil, apperrors.NotFound("get delivery status", "no status for message %s", messageID)
	}
	return &status, nil
}

// ListForRelationship returns statuses keyed by message id.
func (t *DeliveryStatusTracker) ListForRelationship(ctx context.Context, relationshipID string) (map[string]models.DeliveryStatus, error) {
	var statuses []models.DeliveryStatus
	if err := t.Store.Query(ctx, models.DeliveryStatusTable, "relationshipId", relationshipID, &statuses); err != nil {
		return nil, apperrors.Unavailable("list delivery statuses", err)
	}
	byMessage := make(map[string]models.DeliveryStatus, len(statuses))
	for _, status := range statuses {
		byMessage[status.MessageID] = status
	}
	return byMessage, nil
}
