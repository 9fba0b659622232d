package models

// Pairing code format.
const (
	CoupleCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CoupleCodeLength   = 6
)

// Socket.io event names.
const (
	EventJoin  = "join"
	EventLeave = "leave"
	EventFeed  = "feed"
	EventError = "feedError"
)

// Notification data keys sent with every push.
const (
	NotificationKeyRelationshipID = "relationshipId"
	NotificationKeyMessageID      = "messageId"
	NotificationKeyMonthIndex     = "monthIndex"
)
