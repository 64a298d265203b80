package server

import (
	"github.com/bearkuang/oristagram/internal/featureflags"
	"github.com/bearkuang/oristagram/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
// @Summary Feature flags
// @Description Anonymous callers get the evaluation for user 0, so partial rollouts read as off
// @Tags meta
// @Produce json
// @Success 200 {object} object{raw=map[string]string,evaluated=map[string]bool,flags=[]featureflags.State}
// @Router /feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID, _ := s.optionalUserID(c)

	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
			"flags":     []featureflags.State{},
		})
	}

	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(userID),
		"flags":     s.featureFlags.Describe(userID),
	})
}

// optionalUserID authenticates a bearer token if one is present but does not require it.
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	tokenString, err := middleware.BearerToken(c)
	if err != nil {
		return 0, false
	}
	claims, err := s.authService.Authenticate(c.UserContext(), tokenString)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}
