package server

import "github.com/gofiber/fiber/v2"

// Follow handles POST /api/follows/:id/follow
// @Summary Follow a user
// @Tags follows
// @Security BearerAuth
// @Produce json
// @Param id path int true "User ID"
// @Success 201 {object} models.Follow
// @Failure 400 {object} models.ErrorResponse "already following or self"
// @Failure 404 {object} models.ErrorResponse
// @Router /follows/{id}/follow [post]
func (s *Server) Follow(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	follow, err := s.followService.Follow(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(follow)
}

// Unfollow handles POST /api/follows/:id/unfollows
// @Summary Unfollow a user
// @Tags follows
// @Security BearerAuth
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} object{status=string}
// @Failure 400 {object} models.ErrorResponse "not following"
// @Failure 404 {object} models.ErrorResponse
// @Router /follows/{id}/unfollows [post]
func (s *Server) Unfollow(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.followService.Unfollow(c.UserContext(), currentUserID(c), id); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "Unfollowed successfully"})
}
