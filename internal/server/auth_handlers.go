package server

import (
	"errors"
	"time"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,max=254"`
	Password  string `json:"password" validate:"required"`
	Bio       string `json:"bio" validate:"max=500"`
	BirthDate string `json:"birth_date"`
	Website   string `json:"website" validate:"max=200"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

// Register handles POST /api/auth/register
// @Summary Register
// @Description Create an account and sign it in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Register request"
// @Success 201 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return respondServiceError(c, err)
	}

	res, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Bio:       req.Bio,
		BirthDate: birthDate,
		Website:   req.Website,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Login handles POST /api/auth/login
// @Summary Login
// @Description Sign in with a username or an email. A deactivated account gets a temp token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} service.AuthResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} object{error=string,temp_token=string}
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	res, err := s.authService.Login(c.UserContext(), service.LoginInput{
		UsernameOrEmail: req.UsernameOrEmail,
		Password:        req.Password,
	})
	if err != nil {
		var inactive *service.InactiveAccountError
		if errors.As(err, &inactive) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":      inactive.Error(),
				"temp_token": inactive.TempToken,
			})
		}
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// Refresh handles POST /api/auth/refresh
// @Summary Refresh access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{refresh=string} true "Refresh token"
// @Success 200 {object} object{access=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/refresh [post]
func (s *Server) Refresh(c *fiber.Ctx) error {
	var req struct {
		Refresh string `json:"refresh" validate:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	access, err := s.authService.Refresh(c.UserContext(), req.Refresh)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"access": access})
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the presented access token
// @Tags auth
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
	}
	if err := s.authService.Logout(c.UserContext(), claims); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/auth/me
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.User
// @Router /auth/me [get]
func (s *Server) Me(c *fiber.Ctx) error {
	user, err := s.authService.Me(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// Reactivate handles POST /api/auth/reactivate
// @Summary Reactivate a deactivated account
// @Description Requires the temp token returned by login
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/reactivate [post]
func (s *Server) Reactivate(c *fiber.Ctx) error {
	res, err := s.authService.Reactivate(c.UserContext(), currentUserID(c), currentClaims(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// DeleteAccount handles DELETE /api/auth/account
// @Summary Delete a deactivated account
// @Description Requires the temp token returned by login. Removes everything the user owns.
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/account [delete]
func (s *Server) DeleteAccount(c *fiber.Ctx) error {
	if err := s.authService.DeleteAccount(c.UserContext(), currentUserID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Deactivate handles POST /api/users/me/deactivate
// @Summary Deactivate my account
// @Tags users
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /users/me/deactivate [post]
func (s *Server) Deactivate(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
	}
	if err := s.authService.Deactivate(c.UserContext(), currentUserID(c), claims); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Account deactivated"})
}

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a websocket ticket
// @Description Single use, valid for 30 seconds. Pass it as ?ticket= on /ws/chat/:chatroom_id.
// @Tags chat
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	ticket, err := s.authService.IssueWSTicket(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"ticket": ticket, "expires_in": 30})
}

func parseBirthDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, models.NewValidationError("birth_date must be YYYY-MM-DD")
	}
	return &d, nil
}
