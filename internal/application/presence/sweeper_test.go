package presence

import (
	"context"
	"testing"
	"time"

	redisrepo "parley/backend/internal/infrastructure/redis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSweeperFixture() (*Sweeper, *fakeStore, *fakePublisher) {
	store := newFakeStore()
	pub := &fakePublisher{}
	return NewSweeper(store, pub, time.Minute, zap.NewNop()), store, pub
}

func TestSweepRemovesExpiredAndBroadcastsSurvivors(t *testing.T) {
	sweeper, store, pub := newSweeperFixture()
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "stale", time.Minute))
	require.NoError(t, store.Renew(ctx, "42", "fresh", 10*time.Minute))
	store.now = store.now.Add(2 * time.Minute)

	require.NoError(t, sweeper.SweepOnce(ctx))

	members, err := store.ListActive(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, members)

	updates := pub.byType(redisrepo.EventMembersUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, "42", updates[0].RoomID)
	assert.Equal(t, []string{"fresh"}, membersOf(updates[0]))
}

func TestSweepEmptiedRoomLeavesRegistryAndStaysQuiet(t *testing.T) {
	sweeper, store, pub := newSweeperFixture()
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "alice", time.Minute))
	store.now = store.now.Add(2 * time.Minute)

	require.NoError(t, sweeper.SweepOnce(ctx))

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.Empty(t, pub.events)
}

func TestSweepUntouchedRoomDoesNotBroadcast(t *testing.T) {
	sweeper, store, pub := newSweeperFixture()
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "alice", 10*time.Minute))
	require.NoError(t, sweeper.SweepOnce(ctx))

	assert.Empty(t, pub.events)
}

func TestSweepEmptyRegistryIsNoop(t *testing.T) {
	sweeper, _, pub := newSweeperFixture()
	require.NoError(t, sweeper.SweepOnce(context.Background()))
	assert.Empty(t, pub.events)
}

func TestSweepContinuesPastFailingRoom(t *testing.T) {
	sweeper, store, pub := newSweeperFixture()
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "1", "stale-a", time.Minute))
	require.NoError(t, store.Renew(ctx, "1", "fresh-a", 10*time.Minute))
	require.NoError(t, store.Renew(ctx, "2", "stale-b", time.Minute))
	require.NoError(t, store.Renew(ctx, "2", "fresh-b", 10*time.Minute))
	store.now = store.now.Add(2 * time.Minute)
	store.purgeErrFor = map[string]error{"1": redisrepo.ErrStoreUnavailable}

	require.NoError(t, sweeper.SweepOnce(ctx))

	// Room 1 is retried next interval; room 2 was still cleaned.
	membersOne, err := store.ListActive(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh-a"}, membersOne)

	updates := pub.byType(redisrepo.EventMembersUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, "2", updates[0].RoomID)
}

func TestSweepIsIdempotent(t *testing.T) {
	sweeper, store, pub := newSweeperFixture()
	ctx := context.Background()

	require.NoError(t, store.Renew(ctx, "42", "stale", time.Minute))
	require.NoError(t, store.Renew(ctx, "42", "fresh", 10*time.Minute))
	store.now = store.now.Add(2 * time.Minute)

	require.NoError(t, sweeper.SweepOnce(ctx))
	require.NoError(t, sweeper.SweepOnce(ctx))

	// The second pass removed nothing, so it broadcast nothing.
	assert.Len(t, pub.byType(redisrepo.EventMembersUpdated), 1)
}
