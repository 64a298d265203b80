package server

import (
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/repository"
	"github.com/bearkuang/oristagram/internal/service"

	"github.com/gofiber/fiber/v2"
)

// contentHandlers serves the routes posts and reels share.
type contentHandlers[T any, PT interface {
	*T
	models.Content
}] struct {
	svc       *service.ContentService[T, PT]
	listOrder repository.Order
}

func newContentHandlers[T any, PT interface {
	*T
	models.Content
}](svc *service.ContentService[T, PT], listOrder repository.Order) *contentHandlers[T, PT] {
	return &contentHandlers[T, PT]{svc: svc, listOrder: listOrder}
}

// UpdateContentRequest edits a post or reel. PUT replaces every field, PATCH
// only the fields sent.
type UpdateContentRequest struct {
	Content  *string   `json:"content" validate:"omitempty,max=2200"`
	Tags     *[]string `json:"tags"`
	Mentions *[]string `json:"mentions"`
}

// fillOmitted turns a PUT body into a full replacement.
func (r *UpdateContentRequest) fillOmitted() {
	if r.Content == nil {
		r.Content = new(string)
	}
	if r.Tags == nil {
		r.Tags = &[]string{}
	}
	if r.Mentions == nil {
		r.Mentions = &[]string{}
	}
}

// CommentRequest is the body of POST /:id/comment.
type CommentRequest struct {
	Text     string `json:"text"`
	ParentID *uint  `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *contentHandlers[T, PT]) options(c *fiber.Ctx, order repository.Order) repository.ListOptions {
	return repository.ListOptions{
		Page:     parsePagination(c, defaultPageLimit).page(),
		Order:    order,
		ViewerID: currentUserID(c),
	}
}

// List handles GET /api/posts and GET /api/reels
// @Summary List posts or reels
// @Description Posts newest first; reels by engagement
// @Tags content
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Post
// @Router /posts [get]
func (h *contentHandlers[T, PT]) List(c *fiber.Ctx) error {
	items, err := h.svc.List(c.UserContext(), h.options(c, h.listOrder))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(items)
}

// Create handles POST /api/posts and POST /api/reels
// @Summary Create a post or reel
// @Tags content
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param content formData string false "Text"
// @Param tags formData string false "JSON array or comma list"
// @Param mentions formData string false "JSON array of usernames"
// @Param files formData file false "Media"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (h *contentHandlers[T, PT]) Create(c *fiber.Ctx) error {
	uploads, err := readUploads(c, "files")
	if err != nil {
		return respondServiceError(c, err)
	}

	item, err := h.svc.Create(c.UserContext(), service.CreateContentInput{
		UserID:   currentUserID(c),
		Content:  c.FormValue("content"),
		Tags:     formList(c, "tags"),
		Mentions: formList(c, "mentions"),
		Files:    uploads,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// Get handles GET /api/posts/:id and GET /api/reels/:id
func (h *contentHandlers[T, PT]) Get(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	item, err := h.svc.Get(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(item)
}

// Update handles PUT/PATCH /api/posts/:id and /api/reels/:id
// @Summary Edit a post or reel
// @Description Author only. PUT replaces content, tags and mentions; PATCH changes only the fields sent.
// @Tags content
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "ID"
// @Param request body UpdateContentRequest true "New values"
// @Success 200 {object} models.Post
// @Failure 403 {object} models.ErrorResponse
// @Router /posts/{id} [put]
func (h *contentHandlers[T, PT]) Update(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req UpdateContentRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}
	if c.Method() == fiber.MethodPut {
		req.fillOmitted()
	}

	item, err := h.svc.Update(c.UserContext(), service.UpdateContentInput{
		UserID:   currentUserID(c),
		ID:       id,
		Content:  req.Content,
		Tags:     req.Tags,
		Mentions: req.Mentions,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(item)
}

// Delete handles DELETE /api/posts/:id and /api/reels/:id
// @Summary Delete a post or reel
// @Description Author only. Likes, marks, comments and media go with it.
// @Tags content
// @Security BearerAuth
// @Param id path int true "ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (h *contentHandlers[T, PT]) Delete(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := h.svc.Delete(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListByUser handles GET /api/posts/user/:user_id and /api/reels/user/:user_id
func (h *contentHandlers[T, PT]) ListByUser(c *fiber.Ctx) error {
	userID, err := parseID(c, "user_id")
	if err != nil {
		return nil
	}
	items, err := h.svc.ListByUser(c.UserContext(), userID, h.options(c, repository.OrderNewest))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(items)
}

// Followed handles GET /api/reels/feed
// @Summary Reels by accounts I follow
// @Tags content
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.Reel
// @Router /reels/feed [get]
func (h *contentHandlers[T, PT]) Followed(c *fiber.Ctx) error {
	items, err := h.svc.ListFollowed(c.UserContext(), currentUserID(c), h.options(c, repository.OrderNewest))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(items)
}

func (h *contentHandlers[T, PT]) engage(c *fiber.Ctx, fn func(userID, id uint) (string, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	status, err := fn(currentUserID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"status": status})
}

// Like handles POST /:id/like
// @Summary Like a post or reel
// @Tags content
// @Security BearerAuth
// @Produce json
// @Param id path int true "ID"
// @Success 200 {object} object{status=string}
// @Failure 400 {object} models.ErrorResponse "already liked"
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [post]
func (h *contentHandlers[T, PT]) Like(c *fiber.Ctx) error {
	return h.engage(c, func(userID, id uint) (string, error) {
		return h.svc.Like(c.UserContext(), userID, id)
	})
}

// Unlike handles POST /:id/unlike
func (h *contentHandlers[T, PT]) Unlike(c *fiber.Ctx) error {
	return h.engage(c, func(userID, id uint) (string, error) {
		return h.svc.Unlike(c.UserContext(), userID, id)
	})
}

// Mark handles POST /:id/mark
func (h *contentHandlers[T, PT]) Mark(c *fiber.Ctx) error {
	return h.engage(c, func(userID, id uint) (string, error) {
		return h.svc.Mark(c.UserContext(), userID, id)
	})
}

// Unmark handles POST /:id/unmark
func (h *contentHandlers[T, PT]) Unmark(c *fiber.Ctx) error {
	return h.engage(c, func(userID, id uint) (string, error) {
		return h.svc.Unmark(c.UserContext(), userID, id)
	})
}

// Comment handles POST /:id/comment
// @Summary Comment on a post or reel
// @Tags comments
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "ID"
// @Param request body CommentRequest true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/{id}/comment [post]
func (h *contentHandlers[T, PT]) Comment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req CommentRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	comment, err := h.svc.Comment(c.UserContext(), service.ContentCommentInput{
		UserID:   currentUserID(c),
		ID:       id,
		Text:     req.Text,
		ParentID: req.ParentID,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// Comments handles GET /:id/comments
func (h *contentHandlers[T, PT]) Comments(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	comments, err := h.svc.Comments(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(comments)
}
