package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/service"
	"github.com/noah-isme/gema-chat-api/internal/utils"
)

// MessageHandler exposes room history, posting and per-message actions.
type MessageHandler struct {
	messages service.MessageService
	logger   zerolog.Logger
}

// NewMessageHandler constructs a message handler.
func NewMessageHandler(messages service.MessageService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		logger:   logger.With().Str("component", "message_handler").Logger(),
	}
}

// RegisterRoomRoutes wires history and posting under a room group. The
// optional limiter only guards posting.
func (h *MessageHandler) RegisterRoomRoutes(router fiber.Router, limiter fiber.Handler) {
	acting := middleware.ActorOptions{RequireUser: true}

	router.Get("/:id/messages", h.list)
	if limiter != nil {
		router.Post("/:id/messages", limiter, middleware.WithActor(h.post, acting))
		return
	}
	router.Post("/:id/messages", middleware.WithActor(h.post, acting))
}

// Register wires per-message routes.
func (h *MessageHandler) Register(router fiber.Router) {
	acting := middleware.ActorOptions{RequireUser: true}

	router.Get("/:id", h.get)
	router.Patch("/:id", middleware.WithActor(h.edit, acting))
	router.Delete("/:id", middleware.WithActor(h.delete, acting))
	router.Post("/:id/votes", middleware.WithActor(h.vote, acting))
}

func (h *MessageHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.MessageQuery{Limit: limit}
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		query.Before = &parsed
	}

	messages, err := h.messages.List(requestContext(c), middleware.ActorID(c), c.Params("id"), query)
	if err != nil {
		return respondError(c, h.logger, err, "failed to load messages")
	}
	return utils.SendSuccess(c, "messages retrieved", messages)
}

func (h *MessageHandler) post(c *fiber.Ctx) error {
	var req dto.PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	message, err := h.messages.Post(requestContext(c), middleware.ActorID(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to post message")
	}
	return utils.SendCreated(c, "message posted", message)
}

func (h *MessageHandler) get(c *fiber.Ctx) error {
	message, err := h.messages.Get(requestContext(c), middleware.ActorID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load message")
	}
	return utils.SendSuccess(c, "message retrieved", message)
}

func (h *MessageHandler) edit(c *fiber.Ctx) error {
	var req dto.EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	message, err := h.messages.Edit(requestContext(c), middleware.ActorID(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to edit message")
	}
	return utils.SendSuccess(c, "message updated", message)
}

func (h *MessageHandler) delete(c *fiber.Ctx) error {
	if err := h.messages.Delete(requestContext(c), middleware.ActorID(c), c.Params("id")); err != nil {
		return respondError(c, h.logger, err, "failed to delete message")
	}
	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *MessageHandler) vote(c *fiber.Ctx) error {
	var req dto.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	message, err := h.messages.Vote(requestContext(c), middleware.ActorID(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to record vote")
	}
	return utils.SendSuccess(c, "vote recorded", message)
}
