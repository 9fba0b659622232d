package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"anniversary_server/apperrors"
	"anniversary_server/clock"
	"anniversary_server/models"

	"github.com/google/uuid"
)

// MessageStore persists the pre-authored messages of every relationship.
type MessageStore struct {
	Store KeyPathStore
	Clock clock.Clock
	// ResnapshotDelay is how long a subscription waits before retrying a
	// snapshot that failed to load.
	ResnapshotDelay time.Duration
}

func NewMessageStore(store KeyPathStore, clk clock.Clock) *MessageStore {
	if clk == nil {
		clk = clock.System()
	}
	return &MessageStore{Store: store, Clock: clk, ResnapshotDelay: defaultResnapshotDelay}
}

// Save creates a message, or updates the content of an existing one. An
// update never touches delivery fields, so editing cannot undo a delivery.
// A delivered message keeps its month index.
func (s *MessageStore) Save(ctx context.Context, msg models.Message) (*models.Message, error) {
	msg.RelationshipID = strings.TrimSpace(msg.RelationshipID)
	if msg.RelationshipID == "" {
		return nil, apperrors.Validation("save message", "relationship id is required")
	}
	if msg.MonthIndex < 1 {
		return nil, apperrors.Validation("save message", "month index must be 1 or greater, got %d", msg.MonthIndex)
	}
	if strings.TrimSpace(msg.Title) == "" && strings.TrimSpace(msg.Body) == "" {
		return nil, apperrors.Validation("save message", "title or message is required")
	}

	now := s.Clock.Now()
	if msg.ID != "" {
		var existing models.Message
		found, err := s.Store.Get(ctx, ItemPath(models.MessagesTable, msg.ID), &existing)
		if err != nil {
			return nil, apperrors.Unavailable("save message", err)
		}
		if found {
			if existing.RelationshipID != msg.RelationshipID {
				return nil, apperrors.Validation("save message", "message %s belongs to another relationship", msg.ID)
			}
			if existing.IsDelivered && existing.MonthIndex != msg.MonthIndex {
				return nil, apperrors.Validation("save message", "message %s was delivered for month %d and cannot move to month %d", msg.ID, existing.MonthIndex, msg.MonthIndex)
			}
			err = s.Store.UpdateFields(ctx, ItemPath(models.MessagesTable, msg.ID), map[string]any{
				"monthIndex": msg.MonthIndex,
				"title":      msg.Title,
				"message":    msg.Body,
				"imageUrl":   nilIfEmpty(msg.ImageURL),
				"audioUrl":   nilIfEmpty(msg.AudioURL),
				"updatedAt":  now,
			}, MustExist())
			if err != nil {
				return nil, apperrors.Unavailable("save message", err)
			}
			return s.Get(ctx, msg.ID)
		}
	} else {
		msg.ID = uuid.NewString()
	}

	msg.IsDelivered = false
	msg.DeliveredAt = nil
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if err := s.Store.Put(ctx, ItemPath(models.MessagesTable, msg.ID), msg); err != nil {
		return nil, apperrors.Unavailable("save message", err)
	}
	return &msg, nil
}

func (s *MessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	if id == "" {
		return nil, apperrors.Validation("get message", "message id is required")
	}
	var msg models.Message
	found, err := s.Store.Get(ctx, ItemPath(models.MessagesTable, id), &msg)
	if err != nil {
		return nil, apperrors.Unavailable("get message", err)
	}
	if !found {
		return nil, apperrors.NotFound("get message", "message %s", id)
	}
	return &msg, nil
}

// ListForRelationship returns the relationship's messages ordered by month
// index, then creation time, then id.
func (s *MessageStore) ListForRelationship(ctx context.Context, relationshipID string) ([]models.Message, error) {
	if relationshipID == "" {
		return nil, apperrors.Validation("list messages", "relationship id is required")
	}
	var msgs []models.Message
	if err := s.Store.Query(ctx, models.MessagesTable, "relationshipId", relationshipID, &msgs); err != nil {
		return nil, apperrors.Unavailable("list messages", err)
	}
	SortMessages(msgs)
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// SetDelivered writes the delivery flag unconditionally.
func (s *MessageStore) SetDelivered(ctx context.Context, id string, delivered bool, at time.Time) error {
	if id == "" {
		return apperrors.Validation("set delivered", "message id is required")
	}
	var deliveredAt any
	if delivered {
		deliveredAt = at
	}
	err := s.Store.UpdateFields(ctx, ItemPath(models.MessagesTable, id), map[string]any{
		"isDelivered": delivered,
		"deliveredAt": deliveredAt,
		"updatedAt":   s.Clock.Now(),
	}, MustExist())
	return apperrors.Unavailable("set delivered", err)
}

// MarkDelivered flips isDelivered from false to true. It reports false with
// no error when the message was already delivered.
func (s *MessageStore) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	if id == "" {
		return false, apperrors.Validation("mark delivered", "message id is required")
	}
	err := s.Store.UpdateFields(ctx, ItemPath(models.MessagesTable, id), map[string]any{
		"isDelivered": true,
		"deliveredAt": at,
		"updatedAt":   s.Clock.Now(),
	}, MustExist(), IfField("isDelivered", true, false))
	if errors.Is(err, ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Unavailable("mark delivered", err)
	}
	return true, nil
}

func (s *MessageStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.Unavailable("delete message", s.Store.Delete(ctx, ItemPath(models.MessagesTable, id)))
}

// Subscribe streams the relationship's ordered message list: once right
// away and again after every change to any message.
func (s *MessageStore) Subscribe(ctx context.Context, relationshipID string) *Subscription[[]models.Message] {
	return startSubscription(ctx, s.Store, []string{CollectionPrefix(models.MessagesTable)}, s.ResnapshotDelay,
		func(ctx context.Context) ([]models.Message, error) {
			return s.ListForRelationship(ctx, relationshipID)
		})
}

// SortMessages orders by month index, creation time, then id.
func SortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if a.MonthIndex != b.MonthIndex {
			return a.MonthIndex < b.MonthIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
