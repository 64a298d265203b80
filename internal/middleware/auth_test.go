package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/test", func(c *fiber.Ctx) error {
		token, err := BearerToken(c)
		if err != nil {
			return Unauthorized(c, err)
		}
		return c.SendString(token)
	})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"Happy Path", "Bearer abc.def.ghi", http.StatusOK},
		{"Lowercase scheme", "bearer abc.def.ghi", http.StatusOK},
		{"Missing Header", "", http.StatusUnauthorized},
		{"Invalid Format", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"Extra parts", "Bearer a b", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}

func TestSubjectUserID(t *testing.T) {
	id, err := SubjectUserID(jwt.MapClaims{"sub": "42"})
	assert.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = SubjectUserID(jwt.MapClaims{})
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, err = SubjectUserID(jwt.MapClaims{"sub": 42.0})
	assert.ErrorIs(t, err, ErrInvalidSubject)

	_, err = SubjectUserID(jwt.MapClaims{"sub": "0"})
	assert.ErrorIs(t, err, ErrInvalidSubject)

	_, err = SubjectUserID(jwt.MapClaims{"sub": "abc"})
	assert.ErrorIs(t, err, ErrInvalidSubject)
}
