package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fintrust/internal/models"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Verify(ctx context.Context, token string) (*models.IdentityClaims, error) {
	args := m.Called(ctx, token)
	claims, _ := args.Get(0).(*models.IdentityClaims)
	return claims, args.Error(1)
}

func newApp(svc *MockAuthService, extra ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handlers := append([]fiber.Handler{NewAuthMiddleware(svc, nil).Handler}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		claims, ok := Claims(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(claims.Subject)
	})
	app.Get("/secure", handlers...)
	return app
}

func TestAuthMiddleware_Handler(t *testing.T) {
	svc := new(MockAuthService)
	svc.On("Verify", mock.Anything, "good").Return(&models.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Groups:           []string{"operators"},
	}, nil)
	svc.On("Verify", mock.Anything, "bad").Return(nil, errors.New("signature invalid"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid token", header: "Bearer good", want: fiber.StatusOK},
		{name: "invalid token", header: "Bearer bad", want: fiber.StatusUnauthorized},
		{name: "missing header", header: "", want: fiber.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: fiber.StatusUnauthorized},
	}

	app := newApp(svc)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/secure", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRequireGroup(t *testing.T) {
	svc := new(MockAuthService)
	svc.On("Verify", mock.Anything, "good").Return(&models.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
		Groups:           []string{"operators"},
	}, nil)

	allowed := newApp(svc, RequireGroup("operators"))
	req := httptest.NewRequest("GET", "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := allowed.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	denied := newApp(svc, RequireGroup("compliance"))
	req = httptest.NewRequest("GET", "/secure", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err = denied.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
