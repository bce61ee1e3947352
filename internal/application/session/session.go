package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 256
)

// Identity is who this connection acts as. Guests have UserID 0 and pick up a
// display name at connect or on their first join.
type Identity struct {
	UserID      uint
	DisplayName string
	Guest       bool
}

// InboundEvent is the client wire format for every action a connection can
// issue.
type InboundEvent struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Message     string `json:"message,omitempty"`
	ReplyingTo  *uint  `json:"replying_to,omitempty"`
	ReceiverID  uint   `json:"receiver_id,omitempty"`
	ThreadID    uint   `json:"thread_id,omitempty"`
	MessageID   uint   `json:"message_id,omitempty"`
}

// Handler receives parsed events. HandleDisconnect always runs exactly once,
// after the read loop ends, on the same goroutine that handled every event —
// per-session operations never interleave.
type Handler interface {
	HandleEvent(ctx context.Context, s *Session, ev *InboundEvent)
	HandleDisconnect(ctx context.Context, s *Session)
}

// Session is the per-connection state. The rooms and threads sets are only
// touched from the read goroutine, so they need no locking.
type Session struct {
	ID        string
	Identity  Identity
	Conn      *websocket.Conn
	Send      chan []byte
	UserAgent string

	rooms   map[string]struct{}
	threads map[uint]struct{}
	log     *zap.Logger
}

func New(id string, identity Identity, conn *websocket.Conn, userAgent string, log *zap.Logger) *Session {
	return &Session{
		ID:        id,
		Identity:  identity,
		Conn:      conn,
		Send:      make(chan []byte, sendChannelSize),
		UserAgent: userAgent,
		rooms:     make(map[string]struct{}),
		threads:   make(map[uint]struct{}),
		log:       log,
	}
}

func (s *Session) SetDisplayName(name string) { s.Identity.DisplayName = name }

func (s *Session) AddRoom(roomID string)    { s.rooms[roomID] = struct{}{} }
func (s *Session) RemoveRoom(roomID string) { delete(s.rooms, roomID) }

func (s *Session) InRoom(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Session) JoinedRooms() []string {
	out := make([]string, 0, len(s.rooms))
	for roomID := range s.rooms {
		out = append(out, roomID)
	}
	return out
}

func (s *Session) AddThread(threadID uint) { s.threads[threadID] = struct{}{} }

func (s *Session) InThread(threadID uint) bool {
	_, ok := s.threads[threadID]
	return ok
}

// TrySend queues a frame without blocking. A full buffer means the client is
// too slow and the frame is dropped; presence self-corrects on the next
// mutation or sweep.
func (s *Session) TrySend(data []byte) bool {
	select {
	case s.Send <- data:
		return true
	default:
		return false
	}
}

// ReadPump pumps inbound frames to the handler. It is the only reader of the
// connection and the only goroutine that mutates session state.
func (s *Session) ReadPump(ctx context.Context, handler Handler) {
	defer func() {
		handler.HandleDisconnect(ctx, s)
		s.Conn.Close()
	}()
	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Warn("unexpected close", zap.String("session", s.ID), zap.Error(err))
			}
			return
		}
		var ev InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Debug("malformed frame", zap.String("session", s.ID), zap.Error(err))
			continue
		}
		handler.HandleEvent(ctx, s, &ev)
	}
}

// WritePump drains the send channel onto the connection and keeps the client
// alive with pings. It exits when Send is closed (hub unregister) or a write
// fails.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
