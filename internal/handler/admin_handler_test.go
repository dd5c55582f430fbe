package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-chat-api/internal/config"
	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/handler"
)

func TestAdminHandler_RetentionSweep(t *testing.T) {
	f := newChatFixture(t)
	adminID := f.register(t, "admin")
	aliceID := f.register(t, "alice")
	roomID := f.roomID(t, "general")

	content := "fresh"
	_, err := f.messages.Post(context.Background(), aliceID, roomID, dto.PostMessageRequest{Content: &content})
	require.NoError(t, err)

	f.expect(t, fiber.StatusUnauthorized, http.MethodPost, "/api/v1/admin/retention/sweep", "", nil)
	f.expect(t, fiber.StatusForbidden, http.MethodPost, "/api/v1/admin/retention/sweep", aliceID, nil)

	f.expect(t, fiber.StatusOK, http.MethodPost, "/api/v1/admin/bootstrap", adminID, nil)
	out := f.expect(t, fiber.StatusOK, http.MethodPost, "/api/v1/admin/retention/sweep", adminID, nil)
	var sweep dto.SweepResponse
	decodeData(t, out, &sweep)
	require.Zero(t, sweep.Removed)

	room, err := f.store.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.EqualValues(t, 1, room.MessageCount)
}

func TestHealthCheck(t *testing.T) {
	app := fiber.New()
	app.Get("/health", handler.HealthCheck(config.Config{AppName: "GEMA Chat", AppEnv: "test", StorageBackend: config.BackendMemory}))

	f := &chatFixture{app: app}
	out := f.expect(t, fiber.StatusOK, http.MethodGet, "/health", "", nil)
	var health handler.HealthResponse
	decodeData(t, out, &health)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "GEMA Chat", health.Service)
	require.Equal(t, config.BackendMemory, health.Storage)
}
