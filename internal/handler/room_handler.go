package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/service"
	"github.com/noah-isme/gema-chat-api/internal/utils"
)

// RoomHandler exposes public rooms and direct-message membership.
type RoomHandler struct {
	rooms  service.RoomService
	logger zerolog.Logger
}

// NewRoomHandler constructs a room handler.
func NewRoomHandler(rooms service.RoomService, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:  rooms,
		logger: logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register wires the public room routes.
func (h *RoomHandler) Register(router fiber.Router) {
	acting := middleware.ActorOptions{RequireUser: true}

	router.Get("", h.listPublic)
	router.Post("", middleware.WithActor(h.create, acting))
	router.Get("/:id", h.get)
	router.Delete("/:id", middleware.WithActor(h.delete, acting))
}

// RegisterDMs wires the direct-message routes.
func (h *RoomHandler) RegisterDMs(router fiber.Router) {
	acting := middleware.ActorOptions{RequireUser: true}

	router.Post("", middleware.WithActor(h.openDM, acting))
	router.Post("/:id/participants", middleware.WithActor(h.addParticipant, acting))
	router.Delete("/:id/participants/:userId", middleware.WithActor(h.removeParticipant, acting))
}

func (h *RoomHandler) listPublic(c *fiber.Ctx) error {
	rooms, err := h.rooms.ListPublic(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list rooms")
	}
	return utils.SendSuccess(c, "rooms retrieved", rooms)
}

func (h *RoomHandler) get(c *fiber.Ctx) error {
	room, err := h.rooms.Get(requestContext(c), middleware.ActorID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load room")
	}
	return utils.SendSuccess(c, "room retrieved", room)
}

func (h *RoomHandler) create(c *fiber.Ctx) error {
	var req dto.CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	room, err := h.rooms.Create(requestContext(c), middleware.ActorID(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create room")
	}
	return utils.SendCreated(c, "room created", room)
}

func (h *RoomHandler) delete(c *fiber.Ctx) error {
	if err := h.rooms.Delete(requestContext(c), middleware.ActorID(c), c.Params("id")); err != nil {
		return respondError(c, h.logger, err, "failed to delete room")
	}
	return utils.SendSuccess(c, "room deleted", nil)
}

func (h *RoomHandler) openDM(c *fiber.Ctx) error {
	var req dto.OpenDMRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	result, err := h.rooms.OpenDM(requestContext(c), middleware.ActorID(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to open direct message")
	}
	if result.Created {
		return utils.SendCreated(c, "direct message created", result)
	}
	return utils.SendSuccess(c, "direct message retrieved", result)
}

func (h *RoomHandler) addParticipant(c *fiber.Ctx) error {
	var req dto.AddParticipantRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	room, err := h.rooms.AddParticipant(requestContext(c), middleware.ActorID(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to add participant")
	}
	return utils.SendSuccess(c, "participant added", room)
}

func (h *RoomHandler) removeParticipant(c *fiber.Ctx) error {
	room, err := h.rooms.RemoveParticipant(requestContext(c), middleware.ActorID(c), c.Params("id"), c.Params("userId"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to remove participant")
	}
	return utils.SendSuccess(c, "participant removed", room)
}
