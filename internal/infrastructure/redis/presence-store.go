package redisrepo

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore keeps one sorted set per room (member -> absolute expiry in
// unix milliseconds) plus a registry set of all live room ids. Every mutation
// is a store-native atomic operation, so concurrent writers on any process
// interleave safely without application-side locking.
type PresenceStore struct {
	db   *redis.Client
	keys Keys
	now  func() time.Time
}

func NewPresenceStore(db *redis.Client) *PresenceStore {
	return &PresenceStore{
		db:   db,
		keys: Keys{},
		now:  time.Now,
	}
}

// Renew upserts the member entry with expiry now+ttl and registers the room.
// Joining twice is the same as renewing: the score is overwritten, the set
// never grows a duplicate.
func (s *PresenceStore) Renew(ctx context.Context, roomID, identity string, ttl time.Duration) error {
	expires := float64(s.now().Add(ttl).UnixMilli())
	pipe := s.db.Pipeline()
	pipe.ZAdd(ctx, s.keys.RoomMembersKey(roomID), redis.Z{Score: expires, Member: identity})
	pipe.SAdd(ctx, s.keys.AllRoomsKey(), roomID)
	_, err := pipe.Exec(ctx)
	return wrapStoreErr("renew member", err)
}

// Remove deletes the member entry and cascades: when no active members are
// left, the room's set and its registry entry go away with it.
func (s *PresenceStore) Remove(ctx context.Context, roomID, identity string) error {
	if err := s.db.ZRem(ctx, s.keys.RoomMembersKey(roomID), identity).Err(); err != nil {
		return wrapStoreErr("remove member", err)
	}
	return s.dropRoomIfEmpty(ctx, roomID)
}

// ListActive returns identities whose expiry lies in the future, sorted for a
// stable broadcast payload. Filtering happens at read time, so a lagging
// sweeper can never make an expired identity visible here.
func (s *PresenceStore) ListActive(ctx context.Context, roomID string) ([]string, error) {
	members, err := s.db.ZRangeByScore(ctx, s.keys.RoomMembersKey(roomID), &redis.ZRangeBy{
		Min: "(" + s.nowScore(),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, wrapStoreErr("list active members", err)
	}
	sort.Strings(members)
	return members, nil
}

func (s *PresenceStore) Count(ctx context.Context, roomID string) (int64, error) {
	n, err := s.db.ZCount(ctx, s.keys.RoomMembersKey(roomID), "("+s.nowScore(), "+inf").Result()
	if err != nil {
		return 0, wrapStoreErr("count members", err)
	}
	return n, nil
}

// PurgeExpired removes every entry whose expiry has passed and returns how
// many were dropped. Safe to run redundantly: purging an already-purged room
// is a no-op.
func (s *PresenceStore) PurgeExpired(ctx context.Context, roomID string) (int64, error) {
	removed, err := s.db.ZRemRangeByScore(ctx, s.keys.RoomMembersKey(roomID), "-inf", s.nowScore()).Result()
	if err != nil {
		return 0, wrapStoreErr("purge expired members", err)
	}
	if removed > 0 {
		if err := s.dropRoomIfEmpty(ctx, roomID); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *PresenceStore) ListRooms(ctx context.Context) ([]string, error) {
	rooms, err := s.db.SMembers(ctx, s.keys.AllRoomsKey()).Result()
	if err != nil {
		return nil, wrapStoreErr("list rooms", err)
	}
	return rooms, nil
}

func (s *PresenceStore) Ping(ctx context.Context) error {
	return wrapStoreErr("ping", s.db.Ping(ctx).Err())
}

// dropRoomScript counts active members and deletes the room server-side, so
// a Renew from another process can never land between the count and the
// delete. KEYS[1] is the member set, KEYS[2] the registry; ARGV[1] is the
// exclusive now-score, ARGV[2] the room id.
var dropRoomScript = redis.NewScript(`
if tonumber(redis.call("ZCOUNT", KEYS[1], ARGV[1], "+inf")) > 0 then
	return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[2])
return 1
`)

func (s *PresenceStore) dropRoomIfEmpty(ctx context.Context, roomID string) error {
	err := dropRoomScript.Run(ctx, s.db,
		[]string{s.keys.RoomMembersKey(roomID), s.keys.AllRoomsKey()},
		"("+s.nowScore(), roomID).Err()
	return wrapStoreErr("drop empty room", err)
}

func (s *PresenceStore) nowScore() string {
	return strconv.FormatInt(s.now().UnixMilli(), 10)
}
