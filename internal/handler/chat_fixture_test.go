package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/handler"
	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/presence"
	"github.com/noah-isme/gema-chat-api/internal/repository"
	"github.com/noah-isme/gema-chat-api/internal/service"
)

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

type memoryFiles struct {
	mu      sync.Mutex
	stored  map[string][]byte
	deleted []string
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{stored: make(map[string][]byte)}
}

func (m *memoryFiles) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	payload, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	location := "/uploads/" + name
	m.stored[location] = payload
	return location, nil
}

func (m *memoryFiles) Delete(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, location)
	delete(m.stored, location)
	return nil
}

type chatFixture struct {
	app      *fiber.App
	store    *repository.MemoryStore
	feed     service.FeedService
	messages service.MessageService
	files    *memoryFiles
}

// newChatFixture wires every handler on the memory store with the same
// paths the router uses.
func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	store, err := repository.NewMemoryStore(ctx, repository.Options{BotUsername: "GemaBot"})
	require.NoError(t, err)

	feed := service.NewFeedService(nil, nil, "test", logger)
	require.NoError(t, feed.Start(ctx))

	typing := presence.NewTypingStore(presence.Options{}, logger)
	files := newMemoryFiles()

	users := service.NewUserService(store, nil, service.UserServiceConfig{Files: files}, validate, logger)
	rooms := service.NewRoomService(store, files, validate, logger)
	bot := service.NewBotService(store, feed, nil, service.BotServiceConfig{Name: "GemaBot"}, logger)
	messages := service.NewMessageService(service.MessageDeps{
		Store:  store,
		Feed:   feed,
		Typing: typing,
		Bot:    bot,
		Files:  files,
	}, service.MessageServiceConfig{
		Dispatch: func(fn func()) { fn() },
	}, validate, logger)
	retention := service.NewRetentionService(store, service.RetentionConfig{Files: files}, logger)
	uploads := service.NewUploadService(files, store, 1024*1024, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Use(middleware.Identify())

	api := app.Group("/api/v1")
	handler.NewUserHandler(users, rooms, logger).Register(api.Group("/users"))
	roomHandler := handler.NewRoomHandler(rooms, logger)
	roomGroup := api.Group("/rooms")
	roomHandler.Register(roomGroup)
	roomHandler.RegisterDMs(api.Group("/dms"))
	messageHandler := handler.NewMessageHandler(messages, logger)
	messageHandler.RegisterRoomRoutes(roomGroup, nil)
	messageHandler.Register(api.Group("/messages"))
	handler.NewTypingHandler(service.NewTypingService(store, typing, logger), logger).Register(roomGroup)
	handler.NewFeedHandler(feed, rooms, logger).Register(roomGroup)
	handler.NewUploadHandler(uploads, logger).Register(api.Group("/uploads"))
	handler.NewAdminHandler(users, retention, logger).Register(api.Group("/admin"))

	return &chatFixture{app: app, store: store, feed: feed, messages: messages, files: files}
}

func (f *chatFixture) do(t *testing.T, method, path, actor string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(middleware.UserIDHeader, actor)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// expect performs a request, checks the status and decodes the envelope.
func (f *chatFixture) expect(t *testing.T, status int, method, path, actor string, body interface{}) envelope {
	t.Helper()
	resp := f.do(t, method, path, actor, body)
	var out envelope
	decodeResponse(t, resp, &out)
	require.Equal(t, status, resp.StatusCode, out.Message)
	return out
}

func (f *chatFixture) register(t *testing.T, username string) string {
	t.Helper()
	out := f.expect(t, fiber.StatusCreated, http.MethodPost, "/api/v1/users", "", map[string]string{"username": username})
	var user struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &user))
	require.NotEmpty(t, user.ID)
	return user.ID
}

func (f *chatFixture) roomID(t *testing.T, name string) string {
	t.Helper()
	room, err := f.store.GetRoomByName(context.Background(), name)
	if err == nil {
		return room.ID
	}
	room, err = f.store.CreateRoom(context.Background(), repository.CreateRoomInput{Name: name})
	require.NoError(t, err)
	return room.ID
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func decodeData(t *testing.T, out envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(out.Data, target))
}
