package service

import (
	"context"
	"log/slog"

	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/observability"
	"github.com/bearkuang/oristagram/internal/repository"
)

// FollowService manages the directed follow graph.
type FollowService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
}

func NewFollowService(followRepo repository.FollowRepository, userRepo repository.UserRepository) *FollowService {
	return &FollowService{followRepo: followRepo, userRepo: userRepo}
}

// Follow makes followerID follow followedID. Following yourself is rejected.
func (s *FollowService) Follow(ctx context.Context, followerID, followedID uint) (*models.Follow, error) {
	if followerID == followedID {
		return nil, models.NewValidationError("You cannot follow yourself.")
	}
	if err := s.requireUser(ctx, followedID); err != nil {
		return nil, err
	}

	follow := &models.Follow{FollowerID: followerID, FollowedID: followedID}
	if err := s.followRepo.Create(ctx, follow); err != nil {
		return nil, err
	}

	observability.FollowEvents.WithLabelValues("follow").Inc()
	middleware.Logger.InfoContext(ctx, "user followed",
		slog.Uint64("follower_id", uint64(followerID)),
		slog.Uint64("followed_id", uint64(followedID)),
	)
	return follow, nil
}

// Unfollow removes the edge. A missing edge is a CONFLICT.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followedID uint) error {
	if err := s.requireUser(ctx, followedID); err != nil {
		return err
	}
	if err := s.followRepo.Delete(ctx, followerID, followedID); err != nil {
		return err
	}
	observability.FollowEvents.WithLabelValues("unfollow").Inc()
	return nil
}

func (s *FollowService) IsFollowing(ctx context.Context, followerID, followedID uint) (bool, error) {
	return s.followRepo.Exists(ctx, followerID, followedID)
}

func (s *FollowService) requireUser(ctx context.Context, id uint) error {
	if _, err := s.userRepo.GetByID(ctx, id); err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return models.NewNotFoundMessage("User not found")
		}
		return err
	}
	return nil
}
