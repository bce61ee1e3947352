package redisrepo

import (
	"encoding/json"
	"time"
)

// Event types carried over the pub/sub channels. The names are part of the
// client wire contract.
const (
	EventMembersUpdated = "members:updated"
	EventChatMessage    = "chat message"
	EventDirectMessage  = "direct message"
	EventThreadRead     = "dm:read"
)

// Event is the envelope published to a room or thread channel and fanned out
// to every subscribed session on every process.
type Event struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"room_id,omitempty"`
	ThreadID uint            `json:"thread_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Channel returns the pub/sub channel this event belongs on. Thread events
// win when both ids are set, which never happens in practice.
func (e *Event) Channel() string {
	if e.ThreadID != 0 {
		return ThreadChannel(e.ThreadID)
	}
	return RoomChannel(e.RoomID)
}

type MembersUpdated struct {
	Members []string `json:"members"`
}

type ChatMessage struct {
	ID         uint      `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   uint      `json:"sender_id"`
	Username   string    `json:"username"`
	Message    string    `json:"message"`
	ReplyingTo *uint     `json:"replying_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type DirectMessage struct {
	ID         uint      `json:"id"`
	ThreadID   uint      `json:"thread_id"`
	SenderID   uint      `json:"sender_id"`
	ReceiverID uint      `json:"receiver_id"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

type ThreadRead struct {
	ThreadID  uint `json:"thread_id"`
	UserID    uint `json:"user_id"`
	MessageID uint `json:"message_id"`
}

func NewEvent(typ string, roomID string, threadID uint, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: typ, RoomID: roomID, ThreadID: threadID, Payload: data}, nil
}
