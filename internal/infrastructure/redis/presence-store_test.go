package redisrepo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*PresenceStore, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewPresenceStore(client)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestRenewAddsMemberAndRegistersRoom(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "alice", 5*time.Minute))

	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, rooms)
}

func TestRenewTwiceDoesNotDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "alice", 5*time.Minute))
	require.NoError(t, store.Renew(ctx, "42", "alice", 5*time.Minute))

	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	count, err := store.Count(ctx, "42")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestListActiveFiltersExpiredAtReadTime(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "alice", 5*time.Minute))
	require.NoError(t, store.Renew(ctx, "42", "bob", 5*time.Minute))

	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	// No sweeper has run, but an expired entry must never be visible.
	*now = now.Add(5*time.Minute + time.Second)
	members, err = store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, members)

	count, err := store.Count(ctx, "42")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRemoveLastMemberDropsRoomFromRegistry(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "7", "alice", 5*time.Minute))
	require.NoError(t, store.Remove(ctx, "7", "alice"))

	members, err := store.ListActive(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, members)

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rooms, "7")
}

func TestRemoveKeepsRoomWithRemainingMembers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "alice", 5*time.Minute))
	require.NoError(t, store.Renew(ctx, "42", "bob", 5*time.Minute))
	require.NoError(t, store.Remove(ctx, "42", "alice"))

	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, members)

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	assert.Contains(t, rooms, "42")
}

func TestRemoveLastActiveMemberDropsRoomDespiteStaleEntries(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "stale", time.Minute))
	*now = now.Add(2 * time.Minute)
	require.NoError(t, store.Renew(ctx, "42", "alice", 5*time.Minute))

	// Only active members count towards the cascade; the unswept stale
	// entry does not keep the room alive.
	require.NoError(t, store.Remove(ctx, "42", "alice"))

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rooms, "42")

	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRemoveUnknownMemberIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "alice", 5*time.Minute))
	require.NoError(t, store.Remove(ctx, "42", "ghost"))

	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)
}

func TestPurgeExpiredRemovesOnlyStaleEntries(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "stale", time.Minute))
	*now = now.Add(2 * time.Minute)
	require.NoError(t, store.Renew(ctx, "42", "fresh", 5*time.Minute))

	removed, err := store.PurgeExpired(ctx, "42")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, members)
}

func TestExpiryScenario(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "alice", 300*time.Second))
	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	require.NoError(t, store.Renew(ctx, "42", "bob", 300*time.Second))
	members, err = store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	*now = now.Add(301 * time.Second)
	removed, err := store.PurgeExpired(ctx, "42")
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	members, err = store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, members)

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rooms, "42")
}

func TestPurgeExpiredOnEmptyRoomIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	removed, err := store.PurgeExpired(ctx, "99")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStoreErrorIsRetryable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewPresenceStore(client)
	mr.Close()

	err := store.Renew(context.Background(), "42", "alice", time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
