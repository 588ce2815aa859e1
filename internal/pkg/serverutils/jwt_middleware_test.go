package serverutils

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJwtMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	app := fiber.New()
	app.Get("/protected", JwtMiddleware, func(ctx *fiber.Ctx) error {
		// handlers rely on this assertion holding
		userId := ctx.Locals("user_id").(string)
		return ctx.SendString(userId)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "valid token",
			authHeader: "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"user_id": "7f0d3d39-0d4b-4f6a-9d3e-0a1b2c3d4e5f"}),
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "signed token without user_id claim",
			authHeader: "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"sub": "someone"}),
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "signed token with non-string user_id",
			authHeader: "Bearer " + signToken(t, "test-secret", jwt.MapClaims{"user_id": 42}),
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "wrong secret",
			authHeader: "Bearer " + signToken(t, "other-secret", jwt.MapClaims{"user_id": "u"}),
			wantStatus: fiber.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
