package presence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"parley/backend/internal/application/session"
	"parley/backend/internal/infrastructure/postgres"
	redisrepo "parley/backend/internal/infrastructure/redis"
)

// fakeStore mirrors the redis store's semantics on plain maps, with an
// adjustable clock and per-call error injection.
type fakeStore struct {
	now      time.Time
	rooms    map[string]map[string]time.Time
	registry map[string]struct{}

	renewErr     error
	removeErr    error
	listErr      error
	countErr     error
	listRoomsErr error
	purgeErrFor  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		rooms:    make(map[string]map[string]time.Time),
		registry: make(map[string]struct{}),
	}
}

func (f *fakeStore) Renew(_ context.Context, roomID, identity string, ttl time.Duration) error {
	if f.renewErr != nil {
		return f.renewErr
	}
	if f.rooms[roomID] == nil {
		f.rooms[roomID] = make(map[string]time.Time)
	}
	f.rooms[roomID][identity] = f.now.Add(ttl)
	f.registry[roomID] = struct{}{}
	return nil
}

func (f *fakeStore) Remove(_ context.Context, roomID, identity string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.rooms[roomID], identity)
	f.dropIfEmpty(roomID)
	return nil
}

func (f *fakeStore) ListActive(_ context.Context, roomID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var members []string
	for identity, expires := range f.rooms[roomID] {
		if expires.After(f.now) {
			members = append(members, identity)
		}
	}
	sort.Strings(members)
	return members, nil
}

func (f *fakeStore) Count(ctx context.Context, roomID string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	members, err := f.ListActive(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return int64(len(members)), nil
}

func (f *fakeStore) PurgeExpired(_ context.Context, roomID string) (int64, error) {
	if err := f.purgeErrFor[roomID]; err != nil {
		return 0, err
	}
	var removed int64
	for identity, expires := range f.rooms[roomID] {
		if !expires.After(f.now) {
			delete(f.rooms[roomID], identity)
			removed++
		}
	}
	if removed > 0 {
		f.dropIfEmpty(roomID)
	}
	return removed, nil
}

func (f *fakeStore) ListRooms(_ context.Context) ([]string, error) {
	if f.listRoomsErr != nil {
		return nil, f.listRoomsErr
	}
	rooms := make([]string, 0, len(f.registry))
	for roomID := range f.registry {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms, nil
}

func (f *fakeStore) dropIfEmpty(roomID string) {
	active := 0
	for _, expires := range f.rooms[roomID] {
		if expires.After(f.now) {
			active++
		}
	}
	if active == 0 {
		delete(f.rooms, roomID)
		delete(f.registry, roomID)
	}
}

func (f *fakeStore) expiryOf(roomID, identity string) time.Time {
	return f.rooms[roomID][identity]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*redisrepo.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev *redisrepo.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) byType(typ string) []*redisrepo.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*redisrepo.Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func membersOf(ev *redisrepo.Event) []string {
	var payload redisrepo.MembersUpdated
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return nil
	}
	return payload.Members
}

type fakeHub struct {
	registered   []*session.Session
	unregistered []*session.Session
	subscribed   []string
	unsubscribed []string
}

func (f *fakeHub) Register(s *session.Session)   { f.registered = append(f.registered, s) }
func (f *fakeHub) Unregister(s *session.Session) { f.unregistered = append(f.unregistered, s) }
func (f *fakeHub) Subscribe(_ *session.Session, channel string) {
	f.subscribed = append(f.subscribed, channel)
}
func (f *fakeHub) Unsubscribe(_ *session.Session, channel string) {
	f.unsubscribed = append(f.unsubscribed, channel)
}

type fakeMessages struct {
	nextID    uint
	created   []*postgres.Message
	createErr error
}

func (f *fakeMessages) CreateMessage(_ context.Context, roomID, senderID uint, text string, replyingTo *uint) (*postgres.Message, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	msg := &postgres.Message{
		ID:         f.nextID,
		RoomID:     roomID,
		SenderID:   senderID,
		Message:    text,
		ReplyingTo: replyingTo,
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.created = append(f.created, msg)
	return msg, nil
}

type fakeThreads struct {
	threadsByUser map[uint][]uint
	participants  map[uint]map[uint]bool
	threadByPair  map[[2]uint]uint
	nextThreadID  uint
	nextMsgID     uint
	dmErr         error
	markReadErr   error
	lookupErr     error
	marked        []redisrepo.ThreadRead
}

func newFakeThreads() *fakeThreads {
	return &fakeThreads{
		threadsByUser: make(map[uint][]uint),
		participants:  make(map[uint]map[uint]bool),
		threadByPair:  make(map[[2]uint]uint),
		nextThreadID:  100,
	}
}

func pairKey(a, b uint) [2]uint {
	if a > b {
		a, b = b, a
	}
	return [2]uint{a, b}
}

func (f *fakeThreads) ThreadsForUser(_ context.Context, userID uint) ([]uint, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.threadsByUser[userID], nil
}

func (f *fakeThreads) CreateDirectMessage(_ context.Context, senderID, receiverID uint, text string) (*postgres.DirectMessage, bool, error) {
	if f.dmErr != nil {
		return nil, false, f.dmErr
	}
	created := false
	threadID, ok := f.threadByPair[pairKey(senderID, receiverID)]
	if !ok {
		f.nextThreadID++
		threadID = f.nextThreadID
		f.threadByPair[pairKey(senderID, receiverID)] = threadID
		f.participants[threadID] = map[uint]bool{senderID: true, receiverID: true}
		created = true
	}
	f.nextMsgID++
	return &postgres.DirectMessage{
		ID:         f.nextMsgID,
		ThreadID:   threadID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    text,
	}, created, nil
}

func (f *fakeThreads) MarkRead(_ context.Context, threadID, userID, messageID uint) error {
	if f.markReadErr != nil {
		return f.markReadErr
	}
	f.marked = append(f.marked, redisrepo.ThreadRead{ThreadID: threadID, UserID: userID, MessageID: messageID})
	return nil
}

func (f *fakeThreads) IsParticipant(_ context.Context, threadID, userID uint) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.participants[threadID][userID], nil
}
