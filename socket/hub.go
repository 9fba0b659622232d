package socket

import (
	"context"
	"sync"

	"anniversary_server/apperrors"
	"anniversary_server/logger"
	"anniversary_server/models"
	"anniversary_server/services"
)

// JoinRequest is the payload of the join event.
type JoinRequest struct {
	RelationshipID string `json:"relationshipId"`
	DeliveredOnly  bool   `json:"deliveredOnly"`
}

// FeedEvent is emitted with the full ordered feed after every change.
type FeedEvent struct {
	RelationshipID string               `json:"relationshipId"`
	Entries        []services.FeedEntry `json:"entries"`
}

// Emitter is the part of a socket connection the hub writes to.
type Emitter interface {
	ID() string
	Emit(event string, v ...interface{})
}

// Hub keeps one feed subscription per connection. Joining again replaces
// the previous subscription. Only connections registered with Connect and
// not yet disconnected can hold one.
type Hub struct {
	Pairing *services.PairingService
	Feed    *services.FeedService

	mu   sync.Mutex
	live map[string]struct{}
	subs map[string]*services.Subscription[[]services.FeedEntry]
}

func NewHub(pairing *services.PairingService, feed *services.FeedService) *Hub {
	return &Hub{
		Pairing: pairing,
		Feed:    feed,
		live:    make(map[string]struct{}),
		subs:    make(map[string]*services.Subscription[[]services.FeedEntry]),
	}
}

// Connect registers a connection so it may join feeds.
func (h *Hub) Connect(connID string) {
	h.mu.Lock()
	h.live[connID] = struct{}{}
	h.mu.Unlock()
}

// Disconnect forgets the connection and cancels its subscription. A Join
// still in flight for it is closed instead of stored.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	delete(h.live, connID)
	h.mu.Unlock()
	h.Leave(connID)
}

// Join validates the relationship and starts streaming its feed to conn.
func (h *Hub) Join(ctx context.Context, conn Emitter, req JoinRequest) error {
	if _, err := h.Pairing.GetRelationship(ctx, req.RelationshipID); err != nil {
		return err
	}

	sub := h.Feed.Subscribe(context.Background(), req.RelationshipID, services.FeedOptions{DeliveredOnly: req.DeliveredOnly})

	h.mu.Lock()
	if _, ok := h.live[conn.ID()]; !ok {
		h.mu.Unlock()
		sub.Close()
		return apperrors.Validation("join", "connection %s is not connected", conn.ID())
	}
	previous := h.subs[conn.ID()]
	h.subs[conn.ID()] = sub
	h.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	go func() {
		for entries := range sub.Updates() {
			conn.Emit(models.EventFeed, FeedEvent{RelationshipID: req.RelationshipID, Entries: entries})
		}
	}()

	logger.WithRelationship(req.RelationshipID).Info().Str("conn", conn.ID()).Bool("deliveredOnly", req.DeliveredOnly).Msg("👥 joined feed")
	return nil
}

// Leave cancels the connection's subscription, if any.
func (h *Hub) Leave(connID string) {
	h.mu.Lock()
	sub := h.subs[connID]
	delete(h.subs, connID)
	h.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Len reports the number of connections with a live subscription.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*services.Subscription[[]services.FeedEntry])
	h.live = make(map[string]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
