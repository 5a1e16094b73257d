package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/talecraft/api/internal/auth"
	"github.com/talecraft/api/pkg/response"
)

// AuthMiddleware authenticates bearer tokens and stores the owner identity
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

func NewAuthMiddleware(authenticator *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Authenticate validates the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if errors.Is(err, auth.ErrMissingToken) {
			return response.Unauthorized(c, "Missing authorization header")
		}
		if err != nil {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		identity, err := m.authenticator.Resolve(token)
		if err != nil {
			if errors.Is(err, auth.ErrNotConfigured) {
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, "Invalid or expired token")
		}

		setIdentity(c, identity)
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, identity *auth.Identity) {
	c.Locals("userId", identity.UserID)
	c.Locals("email", identity.Email)
	c.Locals("name", identity.Name)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}
