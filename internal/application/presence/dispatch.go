package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"parley/backend/internal/application/session"

	"go.uber.org/zap"
)

// Event names accepted from clients.
const (
	EventJoinRoom      = "join room"
	EventLeaveRoom     = "leave room"
	EventHeartbeat     = "heartbeat"
	EventChatMessage   = "chat message"
	EventDirectMessage = "direct message"
	EventThreadRead    = "dm:read"
)

type errorFrame struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// HandleEvent dispatches one client action. Rejections go back to the
// originating session only; they never affect other connections.
func (e *Engine) HandleEvent(ctx context.Context, s *session.Session, ev *session.InboundEvent) {
	var err error
	switch ev.Type {
	case EventJoinRoom:
		err = e.Join(ctx, s, ev.RoomID, ev.DisplayName)
	case EventLeaveRoom:
		err = e.Leave(ctx, s, ev.RoomID)
	case EventHeartbeat:
		err = e.Heartbeat(ctx, s, ev.RoomID)
	case EventChatMessage:
		err = e.SendRoomMessage(ctx, s, ev)
	case EventDirectMessage:
		err = e.SendDirectMessage(ctx, s, ev)
	case EventThreadRead:
		err = e.MarkThreadRead(ctx, s, ev)
	default:
		err = fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, ev.Type)
	}
	if err == nil {
		return
	}
	e.log.Info("action rejected",
		zap.String("session", s.ID), zap.String("action", ev.Type), zap.Error(err))
	frame, marshalErr := json.Marshal(errorFrame{
		Type:      "error",
		Action:    ev.Type,
		Error:     err.Error(),
		Retryable: IsTransient(err),
	})
	if marshalErr != nil {
		return
	}
	s.TrySend(frame)
}

func (e *Engine) HandleDisconnect(ctx context.Context, s *session.Session) {
	e.Disconnect(ctx, s)
}
