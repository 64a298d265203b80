package server

import "github.com/gofiber/fiber/v2"

// GetFeed handles GET /api/feed
// @Summary Home feed
// @Description Followed accounts' posts from the last 7 days plus popular posts from the last 30, by likes then recency
// @Tags feed
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.Post
// @Router /feed [get]
func (s *Server) GetFeed(c *fiber.Ctx) error {
	posts, err := s.feedService.Feed(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}

// GetExplore handles GET /api/explore
// @Summary Explore
// @Description Posts and reels by engagement
// @Tags feed
// @Security BearerAuth
// @Produce json
// @Success 200 {object} service.Explore
// @Router /explore [get]
func (s *Server) GetExplore(c *fiber.Ctx) error {
	explore, err := s.feedService.Explore(c.UserContext(), currentUserID(c), parsePagination(c, defaultPageLimit).page())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(explore)
}

// GetTopReels handles GET /api/reels/top_reels
// @Summary Top reels
// @Tags feed
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Reel
// @Router /reels/top_reels [get]
func (s *Server) GetTopReels(c *fiber.Ctx) error {
	reels, err := s.feedService.TopReels(c.UserContext(), currentUserID(c), parsePagination(c, defaultPageLimit).page())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(reels)
}

// SearchTags handles GET /api/search/tags?q=
// @Summary Search tags
// @Tags search
// @Security BearerAuth
// @Produce json
// @Param q query string true "Query"
// @Success 200 {array} models.Tag
// @Failure 400 {object} models.ErrorResponse
// @Router /search/tags [get]
func (s *Server) SearchTags(c *fiber.Ctx) error {
	tags, err := s.feedService.SearchTags(c.UserContext(), c.Query("q"))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(tags)
}

// GetTagged handles GET /api/search/tagged?tag=
// @Summary Posts and reels with a tag
// @Tags search
// @Security BearerAuth
// @Produce json
// @Param tag query string true "Tag name"
// @Success 200 {object} service.Tagged
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /search/tagged [get]
func (s *Server) GetTagged(c *fiber.Ctx) error {
	tagged, err := s.feedService.Tagged(c.UserContext(), c.Query("tag"), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(tagged)
}
