package models

import "time"

// RelationshipState is derived from the stored fields, never persisted.
type RelationshipState string

const (
	StateWaitingForPartner RelationshipState = "WAITING_FOR_PARTNER"
	StateActive            RelationshipState = "ACTIVE"
	StateInactive          RelationshipState = "INACTIVE"
)

// Relationship is the paired record anchoring both participants and the
// start date every month index is counted from.
type Relationship struct {
	ID          string    `dynamodbav:"id" json:"id"`
	InitiatorID string    `dynamodbav:"initiatorId" json:"initiatorId"`
	PartnerID   string    `dynamodbav:"partnerId" json:"partnerId"` // empty until redeemed, then immutable
	StartDate   time.Time `dynamodbav:"relationshipStartDate" json:"relationshipStartDate"`
	CoupleCode  string    `dynamodbav:"coupleCode" json:"coupleCode"`
	IsActive    bool      `dynamodbav:"isActive" json:"isActive"`
	CreatedAt   time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

// State maps the record onto the scheduler's state machine.
func (r Relationship) State() RelationshipState {
	switch {
	case !r.IsActive:
		return StateInactive
	case r.PartnerID == "":
		return StateWaitingForPartner
	default:
		return StateActive
	}
}

// RelationshipsTable is the collection holding relationship records.
const RelationshipsTable = "relationships"
