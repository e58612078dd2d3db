package serverutils

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"food-search-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestParseUserID(t *testing.T) {
	valid := signToken(t, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(time.Hour).Unix()}, testSecret)
	expired := signToken(t, jwt.MapClaims{"user_id": "u-1", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret)
	wrongKey := signToken(t, jwt.MapClaims{"user_id": "u-1"}, "other")
	noUser := signToken(t, jwt.MapClaims{"sub": "x"}, testSecret)

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr error
	}{
		{"valid", valid, "u-1", nil},
		{"empty", "", "", ErrMissingToken},
		{"expired", expired, "", ErrInvalidToken},
		{"wrong key", wrongKey, "", ErrInvalidToken},
		{"missing claim", noUser, "", ErrInvalidToken},
		{"garbage", "not.a.token", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUserID(tt.token, testSecret)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionalJwtMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", OptionalJwtMiddleware(testSecret), func(c *fiber.Ctx) error {
		return c.SendString("user=" + UserID(c))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "user=", string(body))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{"user_id": "u-9"}, testSecret))
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "user=u-9", string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/?token=bad", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJwtMiddleware_RequiresToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", JwtMiddleware(testSecret), func(c *fiber.Ctx) error { return c.SendStatus(204) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestErrorHandlerMiddleware_RecoversPanic(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(ErrorHandlerMiddleware(logger.NewNop()))
	app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, 500, body.Code)

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestValidateRequest(t *testing.T) {
	type req struct {
		Query string `validate:"required,max=5"`
	}
	assert.NoError(t, ValidateRequest(req{Query: "abc"}))
	err := ValidateRequest(req{Query: "abcdefg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Query failed max=5")
	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fiber.StatusBadRequest, fe.Code)
	assert.Error(t, ValidateRequest(req{}))
}
