package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func signToken(t *testing.T, secret string, sub any, exp time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(exp).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthRequired(t *testing.T) {
	app := fiber.New()
	verifier := NewTokenVerifier(testSecret)

	app.Get("/test", AuthRequired(verifier), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"userID": c.Locals("userID")})
	})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedUserID uint
	}{
		{
			name:           "Happy Path",
			authHeader:     "Bearer " + signToken(t, testSecret, strconv.Itoa(123), time.Hour),
			expectedStatus: http.StatusOK,
			expectedUserID: 123,
		},
		{"Missing Header", "", http.StatusUnauthorized, 0},
		{"Invalid Format", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, 0},
		{"Malformed Token", "Bearer malformed.token.here", http.StatusUnauthorized, 0},
		{"Expired Token", "Bearer " + signToken(t, testSecret, "123", -time.Hour), http.StatusUnauthorized, 0},
		{"Wrong Secret", "Bearer " + signToken(t, "other-secret", "123", time.Hour), http.StatusUnauthorized, 0},
		{"Numeric Subject", "Bearer " + signToken(t, testSecret, 123, time.Hour), http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, float64(tt.expectedUserID), body["userID"])
			}
		})
	}
}

func TestTokenVerifier_Verify(t *testing.T) {
	v := NewTokenVerifier(testSecret)

	id, err := v.Verify(signToken(t, testSecret, "42", time.Minute))
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = v.Verify("")
	assert.Error(t, err)

	_, err = v.Verify(signToken(t, testSecret, "0", time.Minute))
	assert.Error(t, err)

	_, err = v.Verify(signToken(t, testSecret, "abc", time.Minute))
	assert.Error(t, err)
}

func TestSocketToken(t *testing.T) {
	app := fiber.New()
	app.Get("/ws", func(c *fiber.Ctx) error {
		return c.SendString(SocketToken(c))
	})

	read := func(req *http.Request) string {
		resp, err := app.Test(req)
		require.NoError(t, err)
		buf := make([]byte, 64)
		n, _ := resp.Body.Read(buf)
		return string(buf[:n])
	}

	assert.Equal(t, "q-token", read(httptest.NewRequest(http.MethodGet, "/ws?token=q-token", nil)))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer h-token")
	assert.Equal(t, "h-token", read(req))

	assert.Equal(t, "", read(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}
