// Package middleware provides HTTP middleware components for the application.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"fintrust/internal/models"
	"fintrust/internal/services/auth"
)

// ClaimsKey is the fiber locals key holding *models.IdentityClaims.
const ClaimsKey = "claims"

// AuthMiddleware validates bearer tokens against the identity provider's
// published keys and stores the claims on the request.
type AuthMiddleware struct {
	authService auth.Service
	log         *zap.Logger
}

func NewAuthMiddleware(authService auth.Service, log *zap.Logger) *AuthMiddleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthMiddleware{authService: authService, log: log}
}

func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
	}

	claims, err := m.authService.Verify(c.UserContext(), strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
	if err != nil {
		m.log.Debug("token rejected", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}

	c.Locals(ClaimsKey, claims)
	return c.Next()
}

// RequireGroup rejects callers whose token lacks the given group.
func RequireGroup(group string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(ClaimsKey).(*models.IdentityClaims)
		if !ok || claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}
		if !claims.InGroup(group) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
		}
		return c.Next()
	}
}

// Claims returns the verified claims for the request, if any.
func Claims(c *fiber.Ctx) (*models.IdentityClaims, bool) {
	claims, ok := c.Locals(ClaimsKey).(*models.IdentityClaims)
	return claims, ok && claims != nil
}
