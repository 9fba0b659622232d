package services

import (
	"context"
	"time"

	"anniversary_server/models"
)

// FeedEntry is a message with its delivery status, if any.
type FeedEntry struct {
	Message models.Message         `json:"message"`
	Status  *models.DeliveryStatus `json:"status,omitempty"`
}

type FeedOptions struct {
	// DeliveredOnly hides messages whose month has not been delivered yet,
	// which is what the receiving partner should see.
	DeliveredOnly bool
}

// FeedService joins messages with their statuses for clients.
type FeedService struct {
	Store           KeyPathStore
	Messages        *MessageStore
	Statuses        *DeliveryStatusTracker
	ResnapshotDelay time.Duration
}

func NewFeedService(store KeyPathStore, messages *MessageStore, statuses *DeliveryStatusTracker) *FeedService {
	return &FeedService{Store: store, Messages: messages, Statuses: statuses, ResnapshotDelay: defaultResnapshotDelay}
}

func (f *FeedService) Snapshot(ctx context.Context, relationshipID string, opts FeedOptions) ([]FeedEntry, error) {
	msgs, err := f.Messages.ListForRelationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	statuses, err := f.Statuses.ListForRelationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}

	entries := make([]FeedEntry, 0, len(msgs))
	for _, msg := range msgs {
		if opts.DeliveredOnly && !msg.IsDelivered {
			continue
		}
		entry := FeedEntry{Message: msg}
		if status, ok := statuses[msg.ID]; ok {
			entry.Status = &status
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Subscribe streams the feed, re-snapshotting after any message or status write.
func (f *FeedService) Subscribe(ctx context.Context, relationshipID string, opts FeedOptions) *Subscription[[]FeedEntry] {
	prefixes := []string{
		CollectionPrefix(models.MessagesTable),
		CollectionPrefix(models.DeliveryStatusTable),
	}
	return startSubscription(ctx, f.Store, prefixes, f.ResnapshotDelay, func(ctx context.Context) ([]FeedEntry, error) {
		return f.Snapshot(ctx, relationshipID, opts)
	})
}
