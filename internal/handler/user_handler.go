package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/service"
	"github.com/noah-isme/gema-chat-api/internal/utils"
)

// UserHandler exposes user profile, presence and moderation endpoints.
type UserHandler struct {
	users  service.UserService
	rooms  service.RoomService
	logger zerolog.Logger
}

// NewUserHandler constructs a user handler.
func NewUserHandler(users service.UserService, rooms service.RoomService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		rooms:  rooms,
		logger: logger.With().Str("component", "user_handler").Logger(),
	}
}

// Register wires user routes.
func (h *UserHandler) Register(router fiber.Router) {
	acting := middleware.ActorOptions{RequireUser: true}

	router.Post("", h.register)
	router.Get("", h.list)
	router.Get("/online", h.listOnline)
	router.Get("/offline", h.listOffline)
	router.Get("/by-name/:username", h.getByUsername)
	router.Get("/:id", h.get)
	router.Get("/:id/dms", middleware.WithActor(h.listDMs, acting))
	router.Patch("/:id/status", middleware.WithActor(h.updateStatus, acting))
	router.Put("/:id/profile", middleware.WithActor(h.updateProfile, acting))
	router.Post("/:id/heartbeat", middleware.WithActor(h.heartbeat, acting))
	router.Post("/:id/ban", middleware.WithActor(h.ban, acting))
	router.Delete("/:id/ban", middleware.WithActor(h.unban, acting))
	router.Post("/:id/admin", middleware.WithActor(h.setAdmin, acting))
	router.Delete("/:id", middleware.WithActor(h.delete, acting))
}

func (h *UserHandler) register(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, err := h.users.Register(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to register user")
	}

	return utils.SendCreated(c, "user registered", user)
}

func (h *UserHandler) list(c *fiber.Ctx) error {
	users, err := h.users.List(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list users")
	}
	return utils.SendSuccess(c, "users retrieved", users)
}

func (h *UserHandler) listOnline(c *fiber.Ctx) error {
	users, err := h.users.ListOnline(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list online users")
	}
	return utils.SendSuccess(c, "online users retrieved", users)
}

func (h *UserHandler) listOffline(c *fiber.Ctx) error {
	users, err := h.users.ListOffline(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list offline users")
	}
	return utils.SendSuccess(c, "offline users retrieved", users)
}

func (h *UserHandler) get(c *fiber.Ctx) error {
	user, err := h.users.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load user")
	}
	return utils.SendSuccess(c, "user retrieved", user)
}

func (h *UserHandler) getByUsername(c *fiber.Ctx) error {
	user, err := h.users.GetByUsername(requestContext(c), c.Params("username"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load user")
	}
	return utils.SendSuccess(c, "user retrieved", user)
}

func (h *UserHandler) listDMs(c *fiber.Ctx) error {
	rooms, err := h.rooms.ListDMs(requestContext(c), middleware.ActorID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list direct messages")
	}
	return utils.SendSuccess(c, "direct messages retrieved", rooms)
}

func (h *UserHandler) updateStatus(c *fiber.Ctx) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, err := h.users.UpdateStatus(requestContext(c), middleware.ActorID(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update status")
	}
	return utils.SendSuccess(c, "status updated", user)
}

func (h *UserHandler) updateProfile(c *fiber.Ctx) error {
	var req dto.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, err := h.users.UpdateProfile(requestContext(c), middleware.ActorID(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to update profile")
	}
	return utils.SendSuccess(c, "profile updated", user)
}

func (h *UserHandler) heartbeat(c *fiber.Ctx) error {
	user, err := h.users.Heartbeat(requestContext(c), middleware.ActorID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to record heartbeat")
	}
	return utils.SendSuccess(c, "heartbeat recorded", user)
}

func (h *UserHandler) ban(c *fiber.Ctx) error {
	var req dto.BanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidBody(c)
		}
	}

	user, err := h.users.Ban(requestContext(c), middleware.ActorID(c), c.Params("id"), req)
	if err != nil {
		return respondError(c, h.logger, err, "failed to ban user")
	}
	return utils.SendSuccess(c, "user banned", user)
}

func (h *UserHandler) unban(c *fiber.Ctx) error {
	user, err := h.users.Unban(requestContext(c), middleware.ActorID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to unban user")
	}
	return utils.SendSuccess(c, "user unbanned", user)
}

func (h *UserHandler) setAdmin(c *fiber.Ctx) error {
	var req dto.SetAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, err := h.users.SetAdmin(requestContext(c), middleware.ActorID(c), c.Params("id"), req.Admin)
	if err != nil {
		return respondError(c, h.logger, err, "failed to change admin flag")
	}
	return utils.SendSuccess(c, "admin flag updated", user)
}

func (h *UserHandler) delete(c *fiber.Ctx) error {
	if err := h.users.Delete(requestContext(c), middleware.ActorID(c), c.Params("id")); err != nil {
		return respondError(c, h.logger, err, "failed to delete user")
	}
	return utils.SendSuccess(c, "user deleted", nil)
}
