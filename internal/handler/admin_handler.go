package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/dto"
	"github.com/noah-isme/gema-chat-api/internal/middleware"
	"github.com/noah-isme/gema-chat-api/internal/service"
	"github.com/noah-isme/gema-chat-api/internal/utils"
)

// AdminHandler exposes admin bootstrap and maintenance endpoints.
type AdminHandler struct {
	users     service.UserService
	retention service.RetentionService
	logger    zerolog.Logger
}

// NewAdminHandler constructs an admin handler.
func NewAdminHandler(users service.UserService, retention service.RetentionService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		users:     users,
		retention: retention,
		logger:    logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register wires admin routes.
func (h *AdminHandler) Register(router fiber.Router) {
	acting := middleware.ActorOptions{RequireUser: true}

	router.Post("/bootstrap", middleware.WithActor(h.bootstrap, acting))
	router.Post("/retention/sweep", middleware.WithActor(h.sweep, acting))
}

func (h *AdminHandler) bootstrap(c *fiber.Ctx) error {
	user, err := h.users.BootstrapAdmin(requestContext(c), middleware.ActorID(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to bootstrap admin")
	}
	return utils.SendSuccess(c, "admin bootstrapped", user)
}

func (h *AdminHandler) sweep(c *fiber.Ctx) error {
	removed, err := h.retention.TriggerSweep(requestContext(c), middleware.ActorID(c))
	if err != nil {
		return respondError(c, h.logger, err, "retention sweep failed")
	}
	return utils.SendSuccess(c, "retention sweep completed", dto.SweepResponse{Removed: removed})
}
