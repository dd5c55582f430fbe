package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/repository"
	"github.com/noah-isme/gema-chat-api/pkg/ai"
)

type generatorStub struct {
	reply string
	err   error
	calls []ai.GenerationInput
}

func (g *generatorStub) Generate(ctx context.Context, input ai.GenerationInput) (string, error) {
	g.calls = append(g.calls, input)
	return g.reply, g.err
}

func newBotFixture(t *testing.T, generator ai.Generator) (*repository.MemoryStore, BotService, *testClock) {
	t.Helper()
	clock := newTestClock()
	store := newTestStore(t, clock)
	bot := NewBotService(store, nil, generator, BotServiceConfig{
		Name: "GemaBot",
		Roll: func(n int) int { return n - 1 },
		Now:  clock.Now,
	}, testLogger())
	return store, bot, clock
}

func postAs(t *testing.T, store repository.Store, userID, roomID, content string) models.Message {
	t.Helper()
	message, err := store.CreateMessage(context.Background(), repository.CreateMessageInput{
		RoomID:  roomID,
		UserID:  userID,
		Content: &content,
	})
	require.NoError(t, err)
	return message
}

func TestBotCommands(t *testing.T) {
	store, bot, clock := newBotFixture(t, nil)
	alice := mustUser(t, store, "alice")
	room := mustRoom(t, store, "general")

	cases := []struct {
		content string
		want    string
	}{
		{content: "/ping", want: "pong"},
		{content: "/PING extra", want: "pong"},
		{content: "/help", want: botHelpText},
		{content: "/roll", want: "rolled 6 (d6)"},
		{content: "/roll 20", want: "rolled 20 (d20)"},
		{content: "/roll 1", want: fmt.Sprintf("Usage: /roll [sides] with sides between %d and %d", minDieSides, maxDieSides)},
		{content: "/roll 1001", want: fmt.Sprintf("Usage: /roll [sides] with sides between %d and %d", minDieSides, maxDieSides)},
		{content: "/roll dice", want: fmt.Sprintf("Usage: /roll [sides] with sides between %d and %d", minDieSides, maxDieSides)},
		{content: "/flip", want: "tails"},
		{content: "/time", want: clock.Now().Format(time.RFC3339)},
		{content: "/dance", want: "Unknown command /dance. Type /help to see what I can do."},
		{content: "/ask", want: "Usage: /ask <question>"},
		{content: "/ask what is go?", want: ai.FallbackReply},
	}

	for _, tc := range cases {
		t.Run(tc.content, func(t *testing.T) {
			message := postAs(t, store, alice.ID, room.ID, tc.content)
			reply, ok := bot.Reply(context.Background(), message)
			require.True(t, ok)
			require.Equal(t, tc.want, reply)
		})
	}
}

func TestBotIgnoresUnaddressedAndOwnMessages(t *testing.T) {
	store, bot, _ := newBotFixture(t, nil)
	alice := mustUser(t, store, "alice")
	room := mustRoom(t, store, "general")

	_, ok := bot.Reply(context.Background(), postAs(t, store, alice.ID, room.ID, "just chatting"))
	require.False(t, ok)

	_, ok = bot.Reply(context.Background(), postAs(t, store, store.BotID(), room.ID, "/ping"))
	require.False(t, ok)

	before, err := store.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	bot.Respond(context.Background(), postAs(t, store, store.BotID(), room.ID, "/ping"))
	after, err := store.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	require.Equal(t, before.MessageCount+1, after.MessageCount)
}

func TestBotMentionAndDMUseGenerator(t *testing.T) {
	generator := &generatorStub{reply: "  Go is a language.  "}
	store, bot, clock := newBotFixture(t, generator)
	alice := mustUser(t, store, "alice")
	room := mustRoom(t, store, "general")

	for i := 0; i < 12; i++ {
		postAs(t, store, alice.ID, room.ID, fmt.Sprintf("line %d", i))
		clock.Advance(time.Second)
	}

	trigger := postAs(t, store, alice.ID, room.ID, "hey @gemabot what is go?")
	reply, ok := bot.Reply(context.Background(), trigger)
	require.True(t, ok)
	require.Equal(t, "Go is a language.", reply)

	require.Len(t, generator.calls, 1)
	call := generator.calls[0]
	require.Equal(t, "hey what is go?", call.Prompt)
	require.Equal(t, "general", call.RoomName)
	require.Len(t, call.History, botHistoryWindow)
	require.Equal(t, "line 11", call.History[len(call.History)-1].Content)
	for _, turn := range call.History {
		require.NotContains(t, turn.Content, "@gemabot")
		require.Equal(t, "alice", turn.Author)
	}

	dm, _, err := store.GetOrCreateDMRoom(context.Background(), alice.ID, store.BotID())
	require.NoError(t, err)
	reply, ok = bot.Reply(context.Background(), postAs(t, store, alice.ID, dm.ID, "tell me a joke"))
	require.True(t, ok)
	require.Equal(t, "Go is a language.", reply)
	require.Len(t, generator.calls, 2)
	require.Equal(t, "tell me a joke", generator.calls[1].Prompt)
}

func TestBotGeneratorFailureFallsBack(t *testing.T) {
	generator := &generatorStub{err: errors.New("upstream down")}
	store, bot, _ := newBotFixture(t, generator)
	alice := mustUser(t, store, "alice")
	room := mustRoom(t, store, "general")

	trigger := postAs(t, store, alice.ID, room.ID, "/ask anything")
	bot.Respond(context.Background(), trigger)

	messages, err := store.ListRoomMessages(context.Background(), room.ID, repository.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	var reply models.Message
	for _, message := range messages {
		if message.UserID == store.BotID() {
			reply = message
		}
	}
	require.NotEmpty(t, reply.ID)
	require.Equal(t, models.MessageTypeText, reply.Type)
	require.Equal(t, ai.FallbackReply, *reply.Content)

	stored, err := store.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, stored.MessageCount)
}
