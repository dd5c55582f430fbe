package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/service"
)

// FeedHandler upgrades room feed requests to websockets.
type FeedHandler struct {
	feed   service.FeedService
	rooms  service.RoomService
	logger zerolog.Logger
}

// NewFeedHandler creates a feed handler instance.
func NewFeedHandler(feed service.FeedService, rooms service.RoomService, logger zerolog.Logger) *FeedHandler {
	return &FeedHandler{
		feed:   feed,
		rooms:  rooms,
		logger: logger.With().Str("component", "feed_handler").Logger(),
	}
}

// Register binds the websocket route under a room group.
func (h *FeedHandler) Register(router fiber.Router) {
	router.Get("/:id/ws", h.authorize, websocket.New(h.handleConnection))
}

// authorize runs before the upgrade so unreadable rooms fail with a plain
// HTTP status. Browsers cannot set headers on websocket requests, so the
// acting user may also arrive as the user_id query parameter.
func (h *FeedHandler) authorize(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	actorID := middleware.ActorID(c)
	if actorID == "" {
		actorID = strings.TrimSpace(c.Query("user_id"))
	}

	roomID := c.Params("id")
	if _, err := h.rooms.CanRead(requestContext(c), actorID, roomID); err != nil {
		return respondError(c, h.logger, err, "failed to open feed")
	}

	c.Locals("feed_user_id", actorID)
	c.Locals("feed_room_id", roomID)
	return c.Next()
}

func (h *FeedHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("feed_user_id").(string)
	roomID, _ := conn.Locals("feed_room_id").(string)
	correlation, _ := conn.Locals("correlation_id").(string)

	opts := service.FeedConnectionOptions{
		UserID:        userID,
		RoomID:        roomID,
		CorrelationID: correlation,
	}

	h.logger.Info().Str("user_id", userID).Str("room_id", roomID).Msg("feed websocket connected")
	h.feed.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", userID).Str("room_id", roomID).Msg("feed websocket disconnected")
}
