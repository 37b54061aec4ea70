// Package middleware provides authentication, logging, tracing and rate limiting for the HTTP layer.
package middleware

import (
	"strconv"
	"strings"

	"trashtalk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates already-issued HMAC JWTs and extracts the user id from the "sub" claim.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses tokenString and returns the authenticated user id.
func (v *TokenVerifier) Verify(tokenString string) (uint, error) {
	if tokenString == "" {
		return 0, models.NewUnauthorizedError("Token required")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, models.NewUnauthorizedError("Invalid signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, models.NewUnauthorizedError("Invalid token claims")
	}

	// sub is a decimal string per RFC 7519
	subStr, ok := claims["sub"].(string)
	if !ok {
		return 0, models.NewUnauthorizedError("Invalid token subject")
	}
	userID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil || userID == 0 {
		return 0, models.NewUnauthorizedError("Invalid user ID in token")
	}

	return uint(userID), nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// AuthRequired enforces authentication for protected routes and stores the user id in c.Locals("userID").
func AuthRequired(v *TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return models.RespondWithError(c, models.NewUnauthorizedError("Authorization header required"))
		}
		token := BearerToken(header)
		if token == "" {
			return models.RespondWithError(c, models.NewUnauthorizedError("Invalid authorization header format"))
		}

		userID, err := v.Verify(token)
		if err != nil {
			return models.RespondWithError(c, err)
		}

		c.Locals("userID", userID)
		return c.Next()
	}
}

// SocketToken returns the credential a websocket upgrade request carries, if any:
// the token query parameter first, then a bearer header.
func SocketToken(c *fiber.Ctx) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return BearerToken(c.Get("Authorization"))
}
