package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCreateMirrorsToRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	m := NewManagerWithRedis(Options{MaxSessions: 5, Timeout: time.Minute}, rdb, nil)
	ctx := context.Background()

	cs, err := m.Create(ctx, "CA123", "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingPhone, cs.Stage())
	assert.Equal(t, 1, m.Count())

	assert.True(t, mr.Exists("session:CA123"))
	assert.True(t, mr.Exists("session:CA123:snapshot"))
	assert.Equal(t, "awaiting_phone", mr.HGet("session:CA123", "stage"))
	members, err := mr.Members("active_calls")
	require.NoError(t, err)
	assert.Equal(t, []string{"CA123"}, members)
	assert.Equal(t, time.Minute, mr.TTL("session:CA123:snapshot"))
}

func TestGetRestoresFromSnapshot(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()

	first := NewManagerWithRedis(Options{Timeout: time.Minute}, rdb, nil)
	cs, err := first.Create(ctx, "CA1", "+15550001111")
	require.NoError(t, err)
	require.NoError(t, cs.SetPhone("+919582350455"))
	cs.SetStage(StageActive)
	cs.AppendExchange("where is my bike", "It is on the way.")
	first.Save(ctx, cs)

	// a second instance sharing the same Redis
	second := NewManagerWithRedis(Options{Timeout: time.Minute}, rdb, nil)
	got, err := second.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "+919582350455", got.Phone())
	assert.Equal(t, StageActive, got.Stage())
	require.Len(t, got.Turns(), 2)
	assert.Equal(t, RoleAgent, got.Turns()[1].Role)
	assert.Equal(t, 1, second.Count())
}

func TestGetUnknownSession(t *testing.T) {
	_, rdb := newRedis(t)
	m := NewManagerWithRedis(Options{}, rdb, nil)
	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	memOnly := NewManagerWithRedis(Options{}, nil, nil)
	_, err = memOnly.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMaxSessions(t *testing.T) {
	m := NewManagerWithRedis(Options{MaxSessions: 1}, nil, nil)
	ctx := context.Background()

	_, err := m.Create(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.Create(ctx, "b", "")
	assert.ErrorIs(t, err, ErrMaxSessions)

	// re-creating an existing call is allowed at capacity
	_, err = m.Create(ctx, "a", "")
	assert.NoError(t, err)
}

func TestRemoveClosesAndForgets(t *testing.T) {
	mr, rdb := newRedis(t)
	m := NewManagerWithRedis(Options{}, rdb, nil)
	ctx := context.Background()

	cs, err := m.Create(ctx, "CA9", "")
	require.NoError(t, err)
	m.Remove(ctx, "CA9")

	assert.True(t, cs.IsClosed())
	assert.Equal(t, StageEnded, cs.Stage())
	assert.Equal(t, 0, m.Count())
	assert.False(t, mr.Exists("session:CA9"))
	assert.False(t, mr.Exists("session:CA9:snapshot"))

	_, err = m.Get(ctx, "CA9")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCleanupInactiveRunsHook(t *testing.T) {
	m := NewManagerWithRedis(Options{Timeout: 10 * time.Millisecond}, nil, nil)
	ctx := context.Background()

	var evicted []string
	m.OnEvict(func(_ context.Context, cs *CallSession) {
		assert.False(t, cs.IsClosed())
		evicted = append(evicted, cs.ID)
	})

	_, err := m.Create(ctx, "idle", "")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = m.Create(ctx, "fresh", "")
	require.NoError(t, err)

	assert.Equal(t, 1, m.CleanupInactive(ctx))
	assert.Equal(t, []string{"idle"}, evicted)
	assert.Equal(t, 1, m.Count())
}

func TestSummariesOrdered(t *testing.T) {
	m := NewManagerWithRedis(Options{}, nil, nil)
	ctx := context.Background()
	_, err := m.Create(ctx, "first", "")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := m.Create(ctx, "second", "")
	require.NoError(t, err)
	second.AppendExchange("hi", "hello")

	sums := m.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, "first", sums[0].CallID)
	assert.Equal(t, 2, sums[1].Turns)
}
