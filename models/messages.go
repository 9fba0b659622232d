package models

import "time"

// Message is one pre-authored unit of content bound to a month index.
type Message struct {
	ID             string     `dynamodbav:"id" json:"id"`
	RelationshipID string     `dynamodbav:"relationshipId" json:"relationshipId"`
	MonthIndex     int        `dynamodbav:"monthIndex" json:"monthIndex"` // 1-based
	Title          string     `dynamodbav:"title" json:"title"`
	Body           string     `dynamodbav:"message" json:"message"`
	ImageURL       string     `dynamodbav:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	AudioURL       string     `dynamodbav:"audioUrl,omitempty" json:"audioUrl,omitempty"`
	IsDelivered    bool       `dynamodbav:"isDelivered" json:"isDelivered"`
	DeliveredAt    *time.Time `dynamodbav:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CreatedAt      time.Time  `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time  `dynamodbav:"updatedAt" json:"updatedAt"`
}

// MessagesTable is the collection holding authored messages.
const MessagesTable = "wishes"
