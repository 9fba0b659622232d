package models

import "time"

// DeliveryStatus is read/reaction metadata for one message, stored apart
// from the message so reaction writes never race the delivery flag.
type DeliveryStatus struct {
	MessageID      string     `dynamodbav:"messageId" json:"messageId"`
	RelationshipID string     `dynamodbav:"relationshipId" json:"relationshipId"`
	IsRead         bool       `dynamodbav:"isRead" json:"isRead"`
	ReadAt         *time.Time `dynamodbav:"readAt,omitempty" json:"readAt,omitempty"`
	Reaction       string     `dynamodbav:"reaction,omitempty" json:"reaction,omitempty"` // single slot, latest wins
	Comment        string     `dynamodbav:"comment,omitempty" json:"comment,omitempty"`
	UpdatedAt      time.Time  `dynamodbav:"updatedAt" json:"updatedAt"`
}

// DeliveryStatusTable is the collection holding delivery statuses, keyed by message id.
const DeliveryStatusTable = "delivery_status"
