package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"parley/backend/internal/application/session"
	"parley/backend/internal/infrastructure/postgres"
	redisrepo "parley/backend/internal/infrastructure/redis"

	"go.uber.org/zap"
)

// Store is the shared presence store. All implementations must be safe under
// concurrent access from many processes; the redis one achieves that with
// single-key atomic operations.
type Store interface {
	Renew(ctx context.Context, roomID, identity string, ttl time.Duration) error
	Remove(ctx context.Context, roomID, identity string) error
	ListActive(ctx context.Context, roomID string) ([]string, error)
	Count(ctx context.Context, roomID string) (int64, error)
	PurgeExpired(ctx context.Context, roomID string) (int64, error)
	ListRooms(ctx context.Context) ([]string, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev *redisrepo.Event) error
}

// Subscriptions is the local fan-out registry (the hub).
type Subscriptions interface {
	Register(s *session.Session)
	Unregister(s *session.Session)
	Subscribe(s *session.Session, channel string)
	Unsubscribe(s *session.Session, channel string)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, roomID, senderID uint, text string, replyingTo *uint) (*postgres.Message, error)
}

type ThreadStore interface {
	ThreadsForUser(ctx context.Context, userID uint) ([]uint, error)
	CreateDirectMessage(ctx context.Context, senderID, receiverID uint, text string) (*postgres.DirectMessage, bool, error)
	MarkRead(ctx context.Context, threadID, userID, messageID uint) error
	IsParticipant(ctx context.Context, threadID, userID uint) (bool, error)
}

// Engine drives the per-session presence state machine. Callers invoke it
// from the session's read goroutine only, so operations for one session are
// applied strictly in the order the client issued them.
type Engine struct {
	store    Store
	pub      Publisher
	hub      Subscriptions
	messages MessageStore
	threads  ThreadStore
	ttl      time.Duration
	log      *zap.Logger
}

func NewEngine(store Store, pub Publisher, hub Subscriptions, messages MessageStore, threads ThreadStore, ttl time.Duration, log *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		pub:      pub,
		hub:      hub,
		messages: messages,
		threads:  threads,
		ttl:      ttl,
		log:      log,
	}
}

// StartSession registers the connection and auto-joins the user's DM threads.
// Threads are not presence-tracked, so this never touches the store.
func (e *Engine) StartSession(ctx context.Context, s *session.Session) {
	e.hub.Register(s)
	if s.Identity.Guest {
		return
	}
	ids, err := e.threads.ThreadsForUser(ctx, s.Identity.UserID)
	if err != nil {
		// Room presence still works without thread delivery.
		e.log.Warn("thread auto-join failed", zap.String("session", s.ID), zap.Error(err))
		return
	}
	for _, id := range ids {
		s.AddThread(id)
		e.hub.Subscribe(s, redisrepo.ThreadChannel(id))
	}
}

// Join renews the member entry, subscribes the session and broadcasts the
// fresh member list. Joining twice only extends the TTL. On a store failure
// the session is left untouched and the error is surfaced as retryable.
func (e *Engine) Join(ctx context.Context, s *session.Session, roomID, displayName string) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id required", ErrInvalidInput)
	}
	identity := s.Identity.DisplayName
	if identity == "" {
		if displayName == "" {
			return fmt.Errorf("%w: display name required", ErrInvalidInput)
		}
		// Late-named guest: suffix with the session id so two guests
		// picking the same name stay distinct members.
		s.SetDisplayName(guestIdentity(displayName, s.ID))
		identity = s.Identity.DisplayName
	}
	if err := e.store.Renew(ctx, roomID, identity, e.ttl); err != nil {
		return err
	}
	s.AddRoom(roomID)
	e.hub.Subscribe(s, redisrepo.RoomChannel(roomID))
	e.broadcastMembers(ctx, roomID)
	return nil
}

// Leave removes the member entry and unsubscribes. Leaving a room the
// session never joined is a successful no-op. When the last member leaves,
// the store cascade already dropped the room and nobody is left to hear a
// broadcast, so none is sent.
func (e *Engine) Leave(ctx context.Context, s *session.Session, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id required", ErrInvalidInput)
	}
	if !s.InRoom(roomID) {
		return nil
	}
	if err := e.store.Remove(ctx, roomID, s.Identity.DisplayName); err != nil {
		return err
	}
	s.RemoveRoom(roomID)
	if count, err := e.store.Count(ctx, roomID); err != nil {
		e.log.Warn("member count failed after leave", zap.String("room", roomID), zap.Error(err))
	} else if count > 0 {
		e.broadcastMembers(ctx, roomID)
	}
	e.hub.Unsubscribe(s, redisrepo.RoomChannel(roomID))
	return nil
}

// Heartbeat extends the TTL of an existing membership without a broadcast.
func (e *Engine) Heartbeat(ctx context.Context, s *session.Session, roomID string) error {
	if roomID == "" || !s.InRoom(roomID) {
		return fmt.Errorf("%w: not joined to room %q", ErrInvalidInput, roomID)
	}
	return e.store.Renew(ctx, roomID, s.Identity.DisplayName, e.ttl)
}

// Disconnect cascades a leave for every joined room and unregisters the
// session. A failed removal is logged and skipped: the entry expires on its
// own and the sweeper reconciles the member list.
func (e *Engine) Disconnect(ctx context.Context, s *session.Session) {
	for _, roomID := range s.JoinedRooms() {
		if err := e.store.Remove(ctx, roomID, s.Identity.DisplayName); err != nil {
			e.log.Warn("disconnect cleanup failed, sweeper will reconcile",
				zap.String("room", roomID), zap.String("session", s.ID), zap.Error(err))
			continue
		}
		s.RemoveRoom(roomID)
		if count, err := e.store.Count(ctx, roomID); err == nil && count > 0 {
			e.broadcastMembers(ctx, roomID)
		}
	}
	e.hub.Unregister(s)
}

// SendRoomMessage persists the message, then publishes it to the room.
// Persistence is the source of truth: a failed insert rejects the action and
// nothing is broadcast.
func (e *Engine) SendRoomMessage(ctx context.Context, s *session.Session, ev *session.InboundEvent) error {
	if s.Identity.Guest {
		return ErrUnauthenticated
	}
	roomID, err := parseRoomID(ev.RoomID)
	if err != nil {
		return err
	}
	if ev.Message == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	msg, err := e.messages.CreateMessage(ctx, roomID, s.Identity.UserID, ev.Message, ev.ReplyingTo)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	e.publish(ctx, redisrepo.EventChatMessage, ev.RoomID, 0, &redisrepo.ChatMessage{
		ID:         msg.ID,
		RoomID:     ev.RoomID,
		SenderID:   msg.SenderID,
		Username:   s.Identity.DisplayName,
		Message:    msg.Message,
		ReplyingTo: msg.ReplyingTo,
		CreatedAt:  msg.CreatedAt,
	})
	return nil
}

// SendDirectMessage persists a DM, creating the thread when needed, and fans
// it out on the thread channel. The thread is derived from sender and
// receiver; a thread id in the event is ignored, so nobody can write into a
// thread they do not participate in. The sender subscribes to a thread it
// just created; the receiver picks it up on their next connect.
func (e *Engine) SendDirectMessage(ctx context.Context, s *session.Session, ev *session.InboundEvent) error {
	if s.Identity.Guest {
		return ErrUnauthenticated
	}
	if ev.ReceiverID == 0 || ev.ReceiverID == s.Identity.UserID {
		return fmt.Errorf("%w: bad receiver id", ErrInvalidInput)
	}
	if ev.Message == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	msg, created, err := e.threads.CreateDirectMessage(ctx, s.Identity.UserID, ev.ReceiverID, ev.Message)
	if err != nil {
		return fmt.Errorf("persist direct message: %w", err)
	}
	if created || !s.InThread(msg.ThreadID) {
		s.AddThread(msg.ThreadID)
		e.hub.Subscribe(s, redisrepo.ThreadChannel(msg.ThreadID))
	}
	e.publish(ctx, redisrepo.EventDirectMessage, "", msg.ThreadID, &redisrepo.DirectMessage{
		ID:         msg.ID,
		ThreadID:   msg.ThreadID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Message:    msg.Message,
		CreatedAt:  msg.CreatedAt,
	})
	return nil
}

// MarkThreadRead advances the read pointer and notifies the thread.
func (e *Engine) MarkThreadRead(ctx context.Context, s *session.Session, ev *session.InboundEvent) error {
	if s.Identity.Guest {
		return ErrUnauthenticated
	}
	if ev.ThreadID == 0 || ev.MessageID == 0 {
		return fmt.Errorf("%w: thread id and message id required", ErrInvalidInput)
	}
	ok, err := e.threads.IsParticipant(ctx, ev.ThreadID, s.Identity.UserID)
	if err != nil {
		return fmt.Errorf("participant lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: not a thread participant", ErrInvalidInput)
	}
	if err := e.threads.MarkRead(ctx, ev.ThreadID, s.Identity.UserID, ev.MessageID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	e.publish(ctx, redisrepo.EventThreadRead, "", ev.ThreadID, &redisrepo.ThreadRead{
		ThreadID:  ev.ThreadID,
		UserID:    s.Identity.UserID,
		MessageID: ev.MessageID,
	})
	return nil
}

// broadcastMembers publishes the latest membership snapshot. Fire and forget:
// the store already committed, a lost broadcast only means presence lag until
// the next mutation or sweep.
func (e *Engine) broadcastMembers(ctx context.Context, roomID string) {
	members, err := e.store.ListActive(ctx, roomID)
	if err != nil {
		e.log.Warn("member list read failed, skipping broadcast", zap.String("room", roomID), zap.Error(err))
		return
	}
	e.publish(ctx, redisrepo.EventMembersUpdated, roomID, 0, &redisrepo.MembersUpdated{Members: members})
}

func (e *Engine) publish(ctx context.Context, typ, roomID string, threadID uint, payload any) {
	ev, err := redisrepo.NewEvent(typ, roomID, threadID, payload)
	if err != nil {
		e.log.Error("event marshal failed", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.log.Warn("event publish failed", zap.String("type", typ), zap.String("channel", ev.Channel()), zap.Error(err))
	}
}

func parseRoomID(roomID string) (uint, error) {
	id, err := strconv.ParseUint(roomID, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad room id %q", ErrInvalidInput, roomID)
	}
	return uint(id), nil
}

func guestIdentity(name, sessionID string) string {
	suffix := sessionID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return name + "-" + suffix
}
