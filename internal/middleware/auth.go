package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAuthHeader = errors.New("Authorization header required")
	ErrInvalidAuthHeader = errors.New("Invalid authorization header format")
	ErrMissingSubject    = errors.New("Invalid token structure - missing subject")
	ErrInvalidSubject    = errors.New("Invalid user ID in token")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidAuthHeader
	}
	return parts[1], nil
}

// SubjectUserID parses the "sub" claim (RFC 7519) into a user ID.
func SubjectUserID(claims jwt.MapClaims) (uint, error) {
	subClaim, ok := claims["sub"]
	if !ok {
		return 0, ErrMissingSubject
	}

	subStr, ok := subClaim.(string)
	if !ok {
		return 0, ErrInvalidSubject
	}

	userID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil || userID == 0 {
		return 0, ErrInvalidSubject
	}
	return uint(userID), nil
}

// Unauthorized writes a 401 with the standard error body.
func Unauthorized(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": err.Error(),
	})
}
