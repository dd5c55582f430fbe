package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/service"
	"github.com/noah-isme/gema-chat-api/internal/utils"
)

// TypingHandler exposes typing indicators for a room.
type TypingHandler struct {
	typing service.TypingService
	logger zerolog.Logger
}

// NewTypingHandler constructs a typing handler.
func NewTypingHandler(typing service.TypingService, logger zerolog.Logger) *TypingHandler {
	return &TypingHandler{
		typing: typing,
		logger: logger.With().Str("component", "typing_handler").Logger(),
	}
}

// Register wires typing routes under a room group.
func (h *TypingHandler) Register(router fiber.Router) {
	acting := middleware.ActorOptions{RequireUser: true}

	router.Get("/:id/typing", h.list)
	router.Post("/:id/typing", middleware.WithActor(h.set, acting))
	router.Delete("/:id/typing", middleware.WithActor(h.clear, acting))
}

func (h *TypingHandler) list(c *fiber.Ctx) error {
	entries, err := h.typing.List(requestContext(c), middleware.ActorID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list typing users")
	}
	return utils.SendSuccess(c, "typing users retrieved", entries)
}

func (h *TypingHandler) set(c *fiber.Ctx) error {
	entry, err := h.typing.Set(requestContext(c), middleware.ActorID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to set typing")
	}
	return utils.SendSuccess(c, "typing recorded", entry)
}

func (h *TypingHandler) clear(c *fiber.Ctx) error {
	if err := h.typing.Clear(requestContext(c), middleware.ActorID(c), c.Params("id")); err != nil {
		return respondError(c, h.logger, err, "failed to clear typing")
	}
	return utils.SendSuccess(c, "typing cleared", nil)
}
