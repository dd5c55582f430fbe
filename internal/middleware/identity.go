package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat-api/internal/utils"
)

// UserIDHeader carries the acting user's id. The service trusts it as-is.
const UserIDHeader = "X-User-ID"

// ActorOptions configures the WithActor helper.
type ActorOptions struct {
	RequireUser bool
}

// Identify copies the acting user header into the request locals.
func Identify() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id := strings.TrimSpace(c.Get(UserIDHeader)); id != "" {
			c.Locals("user_id", id)
		}
		return c.Next()
	}
}

// WithActor wraps a handler and rejects anonymous calls when a user is required.
func WithActor(handler fiber.Handler, opts ActorOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if opts.RequireUser && ActorID(c) == "" {
			return utils.SendFailure(c, fiber.StatusUnauthorized, "acting user required",
				fiber.Map{"header": UserIDHeader})
		}
		return handler(c)
	}
}

// ActorID returns the acting user's id, or an empty string.
func ActorID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if value, ok := c.Locals("user_id").(string); ok {
		return value
	}
	return ""
}
