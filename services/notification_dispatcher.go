package services

import (
	"context"

	"anniversary_server/logger"
)

// NotificationDispatcher hands a push notification to a delivery channel.
// Delivery is best effort: callers log failures and move on.
type NotificationDispatcher interface {
	Send(ctx context.Context, targetHandle, title, body string, data map[string]string) error
}

// LogDispatcher only logs notifications. Used in development and when no
// broker is configured.
type LogDispatcher struct{}

func (LogDispatcher) Send(_ context.Context, targetHandle, title, body string, data map[string]string) error {
	logger.Get().Info().
		Str("target", targetHandle).
		Str("title", title).
		Str("body", body).
		Interface("data", data).
		Msg("📣 notification (log only)")
	return nil
}

// DispatcherFunc adapts a function to NotificationDispatcher.
type DispatcherFunc func(ctx context.Context, targetHandle, title, body string, data map[string]string) error

func (f DispatcherFunc) Send(ctx context.Context, targetHandle, title, body string, data map[string]string) error {
	return f(ctx, targetHandle, title, body, data)
}
