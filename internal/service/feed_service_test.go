package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/dto"
)

func receiveEvent(t *testing.T, events <-chan dto.FeedEvent) dto.FeedEvent {
	t.Helper()
	select {
	case event, ok := <-events:
		require.True(t, ok, "feed channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return dto.FeedEvent{}
	}
}

func requireNoEvent(t *testing.T, events <-chan dto.FeedEvent) {
	t.Helper()
	select {
	case event := <-events:
		t.Fatalf("unexpected feed event %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeedServiceLocalDelivery(t *testing.T) {
	feed := NewFeedService(nil, nil, "test", testLogger())
	require.NoError(t, feed.Start(context.Background()))

	general, cancelGeneral := feed.Subscribe("general")
	random, cancelRandom := feed.Subscribe("random")
	defer cancelRandom()

	feed.Publish(context.Background(), dto.FeedEvent{Type: dto.FeedMessageCreated, RoomID: "general", MessageID: "m1"})

	event := receiveEvent(t, general)
	require.Equal(t, "m1", event.MessageID)
	require.False(t, event.SentAt.IsZero())
	requireNoEvent(t, random)

	cancelGeneral()
	cancelGeneral()
	_, ok := <-general
	require.False(t, ok)
}

func TestFeedServiceRedisFanout(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	clientA := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientA.Close()
	clientB := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer clientB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewFeedService(clientA, nil, "test", testLogger())
	nodeB := NewFeedService(clientB, nil, "test", testLogger())
	require.NoError(t, nodeA.Start(ctx))
	require.NoError(t, nodeB.Start(ctx))

	onA, cancelA := nodeA.Subscribe("general")
	defer cancelA()
	onB, cancelB := nodeB.Subscribe("general")
	defer cancelB()

	nodeA.Publish(ctx, dto.FeedEvent{Type: dto.FeedMessageDeleted, RoomID: "general", MessageID: "m1"})

	require.Equal(t, "m1", receiveEvent(t, onA).MessageID)
	remote := receiveEvent(t, onB)
	require.Equal(t, dto.FeedMessageDeleted, remote.Type)
	require.Equal(t, "m1", remote.MessageID)

	// the publishing node drops its own echo
	requireNoEvent(t, onA)
}
