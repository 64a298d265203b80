package service

import (
	"context"
	"strings"
	"time"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/repository"
	"github.com/bearkuang/oristagram/internal/validation"
)

const (
	maxBioLen     = 500
	maxWebsiteLen = 200
)

type UserService struct {
	userRepo   repository.UserRepository
	followRepo repository.FollowRepository
	postRepo   repository.PostRepository
	reelRepo   repository.ReelRepository
	media      *MediaService
}

// UpdateProfileInput carries the fields to change. Nil fields are left alone.
type UpdateProfileInput struct {
	ActorID   uint
	UserID    uint
	Username  *string
	Bio       *string
	Website   *string
	BirthDate *time.Time
}

// Profile is a user with counters and their content.
type Profile struct {
	*models.User
	FollowersCount int64         `json:"followers_count"`
	FollowingCount int64         `json:"following_count"`
	PostsCount     int64         `json:"posts_count"`
	Posts          []models.Post `json:"posts"`
	Reels          []models.Reel `json:"reels"`
	SavedPosts     []models.Post `json:"saved_posts"`
	SavedReels     []models.Reel `json:"saved_reels"`
}

func NewUserService(
	userRepo repository.UserRepository,
	followRepo repository.FollowRepository,
	postRepo repository.PostRepository,
	reelRepo repository.ReelRepository,
	media *MediaService,
) *UserService {
	return &UserService{
		userRepo:   userRepo,
		followRepo: followRepo,
		postRepo:   postRepo,
		reelRepo:   reelRepo,
		media:      media,
	}
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// UpdateProfile lets a user edit their own account only.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	if in.ActorID != in.UserID {
		return nil, models.NewForbiddenError("You are not allowed to update this user.")
	}
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Username = username
	}
	if in.Bio != nil {
		if len(*in.Bio) > maxBioLen {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		user.Bio = *in.Bio
	}
	if in.Website != nil {
		website := strings.TrimSpace(*in.Website)
		if len(website) > maxWebsiteLen {
			return nil, models.NewValidationError("Website too long (max 200 characters)")
		}
		user.Website = website
	}
	if in.BirthDate != nil {
		if in.BirthDate.After(time.Now()) {
			return nil, models.NewValidationError("Birth date cannot be in the future")
		}
		user.BirthDate = in.BirthDate
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetAvatar stores the image and points profile_picture at it. The previous
// file is left on disk.
func (s *UserService) SetAvatar(ctx context.Context, userID uint, up Upload) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	media, err := s.media.StoreAvatar(ctx, up)
	if err != nil {
		return nil, err
	}
	user.ProfilePicture = media.URL
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.media.Remove(ctx, []models.Media{*media})
		return nil, err
	}
	return user, nil
}

// Profile assembles the profile page of userID as seen by viewerID.
func (s *UserService) Profile(ctx context.Context, userID, viewerID uint) (*Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.userRepo.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	newest := repository.ListOptions{Order: repository.OrderNewest, ViewerID: viewerID}
	oldest := repository.ListOptions{Order: repository.OrderOldest, ViewerID: viewerID}

	p := &Profile{
		User:           user,
		FollowersCount: stats.Followers,
		FollowingCount: stats.Following,
		PostsCount:     stats.Posts + stats.Reels,
	}
	if p.Posts, err = everyPage(newest, func(o repository.ListOptions) ([]models.Post, error) {
		return s.postRepo.ListByUser(ctx, userID, o)
	}); err != nil {
		return nil, err
	}
	if p.Reels, err = everyPage(oldest, func(o repository.ListOptions) ([]models.Reel, error) {
		return s.reelRepo.ListByUser(ctx, userID, o)
	}); err != nil {
		return nil, err
	}
	if p.SavedPosts, err = everyPage(newest, func(o repository.ListOptions) ([]models.Post, error) {
		return s.postRepo.ListMarkedBy(ctx, userID, o)
	}); err != nil {
		return nil, err
	}
	if p.SavedReels, err = everyPage(oldest, func(o repository.ListOptions) ([]models.Reel, error) {
		return s.reelRepo.ListMarkedBy(ctx, userID, o)
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// SearchUsernames is rank_search: prefix match beats substring match beats
// bio match, then more followers first.
func (s *UserService) SearchUsernames(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Query parameter 'q' is required.")
	}
	return s.userRepo.Search(ctx, query, 0)
}

// Followers returns the users following userID.
func (s *UserService) Followers(ctx context.Context, userID uint) ([]models.User, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.followRepo.Followers(ctx, userID)
}

// Following returns the users userID follows.
func (s *UserService) Following(ctx context.Context, userID uint) ([]models.User, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.followRepo.Following(ctx, userID)
}
