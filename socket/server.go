package socket

import (
	"context"
	"errors"

	"anniversary_server/apperrors"
	"anniversary_server/logger"
	"anniversary_server/models"

	socketio "github.com/googollee/go-socket.io"
)

// NewSocketServer initializes and returns a new Socket.IO server streaming
// relationship feeds through hub.
func NewSocketServer(hub *Hub) *socketio.Server {
	server := socketio.NewServer(nil)

	// Handle connection events
	server.OnConnect("/", func(s socketio.Conn) error {
		hub.Connect(s.ID())
		logger.Get().Debug().Str("conn", s.ID()).Msg("✅ socket connected")
		return nil
	})

	// Handle join events
	server.OnEvent("/", models.EventJoin, func(s socketio.Conn, req JoinRequest) {
		if req.RelationshipID == "" {
			s.Emit(models.EventError, map[string]string{"error": "relationshipId is required", "kind": apperrors.ErrValidationFailed.Error()})
			return
		}
		if err := hub.Join(context.Background(), s, req); err != nil {
			logger.Get().Warn().Err(err).Str("conn", s.ID()).Msg("❌ join rejected")
			s.Emit(models.EventError, map[string]string{"error": err.Error(), "kind": errorKind(err)})
		}
	})

	server.OnEvent("/", models.EventLeave, func(s socketio.Conn) {
		hub.Leave(s.ID())
	})

	server.OnError("/", func(s socketio.Conn, err error) {
		logger.Get().Warn().Err(err).Msg("⚠️ socket error")
		if s != nil {
			hub.Leave(s.ID())
		}
	})

	// Handle disconnection
	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		hub.Disconnect(s.ID())
		logger.Get().Debug().Str("conn", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	return server
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return apperrors.ErrNotFound.Error()
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return apperrors.ErrStoreUnavailable.Error()
	case errors.Is(err, apperrors.ErrValidationFailed):
		return apperrors.ErrValidationFailed.Error()
	default:
		return ""
	}
}
