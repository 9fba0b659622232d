package services

import (
	"context"
	"strconv"
	"time"

	"anniversary_server/logger"
	"anniversary_server/models"
)

// BacklogPolicy decides what happens to past months whose message was never
// delivered, e.g. after the runner was down for a while.
type BacklogPolicy string

const (
	// BacklogNone only ever considers the current month.
	BacklogNone BacklogPolicy = "none"
	// BacklogCatchUp delivers missed months in ascending order first.
	BacklogCatchUp BacklogPolicy = "catch_up"
)

type TickOutcome string

const (
	OutcomeDelivered         TickOutcome = "delivered"
	OutcomeAlreadyDelivered  TickOutcome = "already_delivered"
	OutcomeNoMessage         TickOutcome = "no_message"
	OutcomeWaitingForPartner TickOutcome = "waiting_for_partner"
	OutcomeInactive          TickOutcome = "inactive"
	// OutcomeBusy means another tick for the same relationship held the lock.
	OutcomeBusy TickOutcome = "busy"
)

const (
	defaultNotificationTitle = "A new message is waiting for you 💌"
	defaultNotificationBody  = "You have a special message waiting!"
)

// TickResult describes one tick. Delivered lists every message flipped by
// this tick, backlog months included.
type TickResult struct {
	RelationshipID string      `json:"relationshipId"`
	Outcome        TickOutcome `json:"outcome"`
	MonthIndex     int         `json:"monthIndex,omitempty"`
	MessageID      string      `json:"messageId,omitempty"`
	Delivered      []string    `json:"delivered,omitempty"`
	NextMonthAt    *time.Time  `json:"nextMonthAt,omitempty"`
}

// DeliveryScheduler decides which message is due for a relationship and
// delivers it. Delivery is the isDelivered false->true transition; the
// notification that follows is best effort.
type DeliveryScheduler struct {
	Pairing    *PairingService
	Messages   *MessageStore
	Dispatcher NotificationDispatcher
	Locker     TickLocker
	Backlog    BacklogPolicy
}

func NewDeliveryScheduler(pairing *PairingService, messages *MessageStore, dispatcher NotificationDispatcher, locker TickLocker) *DeliveryScheduler {
	if dispatcher == nil {
		dispatcher = LogDispatcher{}
	}
	if locker == nil {
		locker = NewLocalTickLocker()
	}
	return &DeliveryScheduler{
		Pairing:    pairing,
		Messages:   messages,
		Dispatcher: dispatcher,
		Locker:     locker,
		Backlog:    BacklogNone,
	}
}

// Tick evaluates one relationship at now. It is safe to call repeatedly:
// a month already delivered is left alone. Store failures are returned
// unchanged and are retryable; nothing is half-advanced by them.
func (s *DeliveryScheduler) Tick(ctx context.Context, relationshipID string, now time.Time) (*TickResult, error) {
	result := &TickResult{RelationshipID: relationshipID}

	if s.Locker != nil {
		unlock, ok, err := s.Locker.TryLock(ctx, relationshipID)
		if err != nil {
			return nil, err
		}
		if !ok {
			result.Outcome = OutcomeBusy
			return result, nil
		}
		defer unlock()
	}

	rel, err := s.Pairing.GetRelationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	switch rel.State() {
	case models.StateInactive:
		result.Outcome = OutcomeInactive
		return result, nil
	case models.StateWaitingForPartner:
		result.Outcome = OutcomeWaitingForPartner
		return result, nil
	}

	index := MonthIndex(rel.StartDate, now)
	next := MonthStart(rel.StartDate, index+1)
	result.MonthIndex = index
	result.NextMonthAt = &next
	log := logger.WithRelationship(relationshipID)

	msgs, err := s.Messages.ListForRelationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	byIndex := dueCandidates(msgs)

	if s.Backlog == BacklogCatchUp {
		for past := 1; past < index; past++ {
			candidate, ok := byIndex[past]
			if !ok || candidate.IsDelivered {
				continue
			}
			flipped, err := s.deliver(ctx, rel, candidate, now)
			if err != nil {
				return result, err
			}
			if flipped {
				result.Delivered = append(result.Delivered, candidate.ID)
			}
		}
	}

	candidate, ok := byIndex[index]
	if !ok {
		result.Outcome = OutcomeNoMessage
		log.Debug().Int("monthIndex", index).Msg("no message authored for current month")
		return result, nil
	}
	result.MessageID = candidate.ID
	if candidate.IsDelivered {
		result.Outcome = OutcomeAlreadyDelivered
		return result, nil
	}

	flipped, err := s.deliver(ctx, rel, candidate, now)
	if err != nil {
		return result, err
	}
	if !flipped {
		result.Outcome = OutcomeAlreadyDelivered
		return result, nil
	}
	result.Outcome = OutcomeDelivered
	result.Delivered = append(result.Delivered, candidate.ID)
	return result, nil
}

// deliver flips the flag and, only if this call flipped it, notifies the
// partner.
func (s *DeliveryScheduler) deliver(ctx context.Context, rel *models.Relationship, msg models.Message, now time.Time) (bool, error) {
	log := logger.WithRelationship(rel.ID)

	flipped, err := s.Messages.MarkDelivered(ctx, msg.ID, now)
	if err != nil {
		log.Warn().Err(err).Str("messageId", msg.ID).Int("monthIndex", msg.MonthIndex).Msg("⚠️ delivery flag write failed, will retry next tick")
		return false, err
	}
	if !flipped {
		return false, nil
	}

	log.Info().Str("messageId", msg.ID).Int("monthIndex", msg.MonthIndex).Msg("✅ message delivered")
	s.notify(ctx, rel, msg)
	return true, nil
}

func (s *DeliveryScheduler) notify(ctx context.Context, rel *models.Relationship, msg models.Message) {
	log := logger.WithRelationship(rel.ID)
	if s.Dispatcher == nil {
		return
	}

	partner, err := s.Pairing.GetParticipant(ctx, rel.PartnerID)
	if err != nil {
		log.Warn().Err(err).Str("partnerId", rel.PartnerID).Msg("⚠️ partner lookup failed, notification skipped")
		return
	}
	if partner.NotificationHandle == "" {
		log.Debug().Str("partnerId", partner.ID).Msg("partner has no notification handle")
		return
	}

	title := msg.Title
	if title == "" {
		title = defaultNotificationTitle
	}
	data := map[string]string{
		models.NotificationKeyRelationshipID: rel.ID,
		models.NotificationKeyMessageID:      msg.ID,
		models.NotificationKeyMonthIndex:     strconv.Itoa(msg.MonthIndex),
	}
	if err := s.Dispatcher.Send(ctx, partner.NotificationHandle, title, defaultNotificationBody, data); err != nil {
		log.Warn().Err(err).Str("messageId", msg.ID).Msg("⚠️ notification failed")
	}
}

// dueCandidates picks, per month index, the earliest-created message.
// msgs must already be sorted by SortMessages.
func dueCandidates(msgs []models.Message) map[int]models.Message {
	byIndex := make(map[int]models.Message, len(msgs))
	for _, msg := range msgs {
		if _, seen := byIndex[msg.MonthIndex]; !seen {
			byIndex[msg.MonthIndex] = msg
		}
	}
	return byIndex
}
