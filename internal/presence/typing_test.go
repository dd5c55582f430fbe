package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(clock *fakeClock) *TypingStore {
	store := NewTypingStore(Options{}, zerolog.Nop())
	store.now = clock.Now
	return store
}

func TestTypingStoreExpiresAtReadThenSweeps(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clock)

	store.Set("u1", "general", "alice")
	require.Len(t, store.List("general"), 1)

	clock.Advance(6 * time.Second)
	require.Empty(t, store.List("general"), "entry past freshness window must be hidden")
	require.Equal(t, 0, store.Sweep(), "entry younger than ttl must survive the sweep")
	require.Equal(t, 1, store.Len())

	clock.Advance(5 * time.Second)
	require.Equal(t, 1, store.Sweep())
	require.Equal(t, 0, store.Len())
}

func TestTypingStoreUpsertAndClear(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(clock)

	store.Set("u1", "general", "alice")
	clock.Advance(4 * time.Second)
	store.Set("u1", "general", "alice")
	store.Set("u2", "general", "bob")
	store.Set("u1", "random", "alice")

	clock.Advance(3 * time.Second)
	entries := store.List("general")
	require.Len(t, entries, 2)
	require.Equal(t, "alice", entries[0].DisplayName)
	require.Equal(t, "bob", entries[1].DisplayName)

	store.Clear("u2", "general")
	entries = store.List("general")
	require.Len(t, entries, 1)
	require.Equal(t, "u1", entries[0].UserID)
	require.Len(t, store.List("random"), 1)
}

func TestTypingStoreRunSweepsOnInterval(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	swept := make(chan int, 4)
	store := NewTypingStore(Options{
		SweepInterval: 10 * time.Millisecond,
		OnSweep: func(remaining int) {
			select {
			case swept <- remaining:
			default:
			}
		},
	}, zerolog.Nop())
	store.now = clock.Now

	store.Set("u1", "general", "alice")
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.Run(ctx)

	select {
	case remaining := <-swept:
		require.Equal(t, 0, remaining)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not run")
	}
}
