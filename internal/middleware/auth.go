package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RequireAdmin guards the admin endpoints with a bearer token. An empty
// configured token disables the endpoints rather than leaving them open.
func RequireAdmin(token string) fiber.Handler {
	var want [32]byte
	if token != "" {
		want = sha256.Sum256([]byte(token))
	}

	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Status(503).JSON(fiber.Map{
				"error":   "admin_disabled",
				"message": "Admin endpoints are disabled; set SHUTTLE_ADMIN_TOKEN to enable them",
			})
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{
				"error":   "missing_token",
				"message": "Admin token is required. Use Authorization: Bearer YOUR_TOKEN",
			})
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_auth_format",
				"message": "Authorization header must be in format: Bearer YOUR_TOKEN",
			})
		}

		got := sha256.Sum256([]byte(strings.TrimSpace(parts[1])))
		if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_token",
				"message": "The provided admin token is not valid",
			})
		}

		return c.Next()
	}
}
