package models

import "time"

// Role is exactly one of the two sides of a relationship.
type Role string

const (
	RoleInitiator Role = "initiator"
	RolePartner   Role = "partner"
)

// Participant is a profile bound to one relationship.
type Participant struct {
	ID                 string    `dynamodbav:"id" json:"id"`
	Role               Role      `dynamodbav:"role" json:"role"`
	Name               string    `dynamodbav:"name" json:"name"`
	NotificationHandle string    `dynamodbav:"deviceToken,omitempty" json:"deviceToken,omitempty"`
	RelationshipID     string    `dynamodbav:"relationshipId" json:"relationshipId"`
	CreatedAt          time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// ParticipantsTable is the collection holding participant profiles.
const ParticipantsTable = "users"
