package server

import (
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UpdateUserRequest carries the profile fields to change. Absent fields are kept.
type UpdateUserRequest struct {
	Username  *string `json:"username" validate:"omitempty,max=150"`
	Bio       *string `json:"bio"`
	Website   *string `json:"website"`
	BirthDate *string `json:"birth_date"`
}

// GetUser handles GET /api/users/:id
// @Summary Get a user
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.GetUserByID(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// UpdateUser handles PUT/PATCH /api/users/:id
// @Summary Update a profile
// @Description Owner only
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /users/{id} [put]
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req UpdateUserRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	in := service.UpdateProfileInput{
		ActorID:  currentUserID(c),
		UserID:   id,
		Username: req.Username,
		Bio:      req.Bio,
		Website:  req.Website,
	}
	if req.BirthDate != nil {
		if in.BirthDate, err = parseBirthDate(*req.BirthDate); err != nil {
			return respondServiceError(c, err)
		}
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), in)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// UploadAvatar handles POST /api/users/me/avatar
// @Summary Set my profile picture
// @Tags users
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /users/me/avatar [post]
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	uploads, err := readUploads(c, "file")
	if err != nil {
		return respondServiceError(c, err)
	}
	if len(uploads) != 1 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Exactly one file is required"))
	}

	user, err := s.userService.SetAvatar(c.UserContext(), currentUserID(c), uploads[0])
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// GetMyProfile handles GET /api/users/profile
// @Summary My profile page
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} service.Profile
// @Router /users/profile [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID := currentUserID(c)
	profile, err := s.userService.Profile(c.UserContext(), userID, userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(profile)
}

// GetUserProfile handles GET /api/users/profile/:id
// @Summary A user's profile page
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} service.Profile
// @Failure 404 {object} models.ErrorResponse
// @Router /users/profile/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	profile, err := s.userService.Profile(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(profile)
}

// GetMyFollowing handles GET /api/users/following
func (s *Server) GetMyFollowing(c *fiber.Ctx) error {
	users, err := s.userService.Following(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(users)
}

// GetFollowers handles GET /api/users/:id/followers
// @Summary Followers of a user
// @Tags follows
// @Security BearerAuth
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {array} models.User
// @Router /users/{id}/followers [get]
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	users, err := s.userService.Followers(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(users)
}

// GetFollowing handles GET /api/users/:id/following
// @Summary Accounts a user follows
// @Tags follows
// @Security BearerAuth
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {array} models.User
// @Router /users/{id}/following [get]
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	users, err := s.userService.Following(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(users)
}

// SearchUsernames handles GET /api/search/usernames?q=
// @Summary Search users
// @Description Prefix matches first, then substring, then bio; more followers first
// @Tags search
// @Security BearerAuth
// @Produce json
// @Param q query string true "Query"
// @Success 200 {array} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /search/usernames [get]
func (s *Server) SearchUsernames(c *fiber.Ctx) error {
	users, err := s.userService.SearchUsernames(c.UserContext(), c.Query("q"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(users)
}
