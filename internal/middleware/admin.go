package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/talecraft/api/pkg/response"
)

// AdminToken guards maintenance endpoints with a shared secret sent in
// X-Admin-Token. An empty secret disables the endpoints.
func AdminToken(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return response.Forbidden(c, "Admin endpoints are disabled")
		}
		token := c.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return response.Unauthorized(c, "Invalid admin token")
		}
		return c.Next()
	}
}
