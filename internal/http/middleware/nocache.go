package middleware

import "github.com/gofiber/fiber/v2"

// NoStore marks responses as private and uncacheable. Mounted on routes that return per-user data.
func NoStore() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")
		c.Set(fiber.HeaderVary, fiber.HeaderAuthorization)
		return c.Next()
	}
}
