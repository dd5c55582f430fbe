package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/models"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type testClock struct {
	mu sync.Mutex
	at time.Time
}

func newTestClock() *testClock {
	return &testClock{at: time.Date(2024, time.March, 4, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func newTestStore(t *testing.T, clock *testClock) *repository.MemoryStore {
	t.Helper()
	store, err := repository.NewMemoryStore(context.Background(), repository.Options{
		BotUsername: "GemaBot",
		Clock:       clock.Now,
	})
	require.NoError(t, err)
	return store
}

func mustUser(t *testing.T, store repository.Store, username string) models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), repository.CreateUserInput{Username: username})
	require.NoError(t, err)
	return user
}

func mustAdmin(t *testing.T, store repository.Store, username string) models.User {
	t.Helper()
	user := mustUser(t, store, username)
	user, err := store.SetUserAdmin(context.Background(), user.ID, true)
	require.NoError(t, err)
	return user
}

func mustRoom(t *testing.T, store repository.Store, name string) models.Room {
	t.Helper()
	room, err := store.CreateRoom(context.Background(), repository.CreateRoomInput{Name: name})
	require.NoError(t, err)
	return room
}

func mustBan(t *testing.T, store repository.Store, userID string) {
	t.Helper()
	until := models.PermanentBan
	_, err := store.SetUserBan(context.Background(), userID, &until)
	require.NoError(t, err)
}

func postFile(t *testing.T, store repository.Store, userID, roomID, path string) models.Message {
	t.Helper()
	message, err := store.CreateMessage(context.Background(), repository.CreateMessageInput{
		RoomID:   roomID,
		UserID:   userID,
		Type:     models.MessageTypeFile,
		FileName: strPtr("upload"),
		FilePath: strPtr(path),
	})
	require.NoError(t, err)
	return message
}

func runInline(fn func()) {
	fn()
}

func strPtr(value string) *string {
	return &value
}

func intPtr(value int) *int {
	return &value
}
