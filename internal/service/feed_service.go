package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bearkuang/oristagram/internal/featureflags"
	"github.com/bearkuang/oristagram/internal/middleware"
	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/observability"
	"github.com/bearkuang/oristagram/internal/repository"
)

const (
	feedFollowedWindow      = 7 * 24 * time.Hour
	feedPopularWindow       = 30 * 24 * time.Hour
	DefaultFeedPopularLimit = 50
)

// FeedService composes the home feed, the explore page and tag listings.
type FeedService struct {
	posts        repository.PostRepository
	reels        repository.ReelRepository
	tags         repository.TagRepository
	flags        *featureflags.Manager
	popularLimit int
	now          func() time.Time
}

// Explore is the explore page.
type Explore struct {
	Feeds []models.Post `json:"feeds"`
	Reels []models.Reel `json:"reels"`
}

// Tagged is everything carrying one tag.
type Tagged struct {
	Tag   *models.Tag   `json:"tag"`
	Posts []models.Post `json:"posts"`
	Reels []models.Reel `json:"reels"`
}

func NewFeedService(
	posts repository.PostRepository,
	reels repository.ReelRepository,
	tags repository.TagRepository,
	flags *featureflags.Manager,
	popularLimit int,
) *FeedService {
	if flags == nil {
		flags = featureflags.NewManager("")
	}
	if popularLimit <= 0 {
		popularLimit = DefaultFeedPopularLimit
	}
	return &FeedService{
		posts:        posts,
		reels:        reels,
		tags:         tags,
		flags:        flags,
		popularLimit: popularLimit,
		now:          time.Now,
	}
}

// Feed is compose_feed: posts by followed accounts from the last week plus
// the most liked posts of the last month, merged by id and ordered by like
// count, then newest first.
func (s *FeedService) Feed(ctx context.Context, userID uint) (_ []models.Post, err error) {
	start := time.Now()
	ctx, end := observability.StartSpan(ctx, observability.OpFeedCompose, observability.UserAttr(userID))
	defer func() {
		end(err)
		observability.FeedComposeDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.now()
	since := now.Add(-feedFollowedWindow)
	followed, err := everyPage(repository.ListOptions{Order: repository.OrderNewest, ViewerID: userID},
		func(opts repository.ListOptions) ([]models.Post, error) {
			return s.posts.ListByFollowed(ctx, userID, since, opts)
		})
	if err != nil {
		return nil, err
	}
	popular, err := s.posts.ListSince(ctx, now.Add(-feedPopularWindow), repository.ListOptions{
		Page:     repository.Page{Limit: s.popularLimit},
		Order:    repository.OrderLikes,
		ViewerID: userID,
	})
	if err != nil {
		return nil, err
	}

	feed := mergePosts(followed, popular)
	middleware.Logger.DebugContext(ctx, "feed composed",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("followed", len(followed)),
		slog.Int("popular", len(popular)),
		slog.Int("total", len(feed)),
	)
	return feed, nil
}

// everyPage runs list over consecutive pages of opts and returns all rows.
func everyPage[T any](opts repository.ListOptions, list func(repository.ListOptions) ([]T, error)) ([]T, error) {
	return repository.CollectPages(func(page repository.Page) ([]T, error) {
		opts.Page = page
		return list(opts)
	})
}

func mergePosts(sets ...[]models.Post) []models.Post {
	seen := make(map[uint]struct{})
	out := make([]models.Post, 0)
	for _, set := range sets {
		for _, p := range set {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LikesCount != out[j].LikesCount {
			return out[i].LikesCount > out[j].LikesCount
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Explore orders posts and reels by engagement. Reels are left empty when
// the explore_reels flag is off for the viewer.
func (s *FeedService) Explore(ctx context.Context, viewerID uint, page repository.Page) (*Explore, error) {
	opts := repository.ListOptions{Page: page, Order: repository.OrderEngagement, ViewerID: viewerID}
	posts, err := s.posts.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := &Explore{Feeds: posts, Reels: []models.Reel{}}
	if s.flags.Enabled(featureflags.ExploreReels, viewerID) {
		if out.Reels, err = s.reels.List(ctx, opts); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SearchTags matches tag names case-insensitively, most used first.
func (s *FeedService) SearchTags(ctx context.Context, query string) ([]models.Tag, error) {
	query = strings.TrimPrefix(strings.TrimSpace(query), "#")
	if query == "" {
		return nil, models.NewValidationError("Query parameter 'q' is required.")
	}
	return s.tags.Search(ctx, query, 0)
}

// Tagged lists posts and reels carrying the tag, most liked first.
func (s *FeedService) Tagged(ctx context.Context, name string, viewerID uint) (*Tagged, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" {
		return nil, models.NewValidationError("Query parameter 'tag' is required.")
	}
	tag, err := s.tags.GetByName(ctx, name)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil, models.NewNotFoundMessage("Tag not found.")
		}
		return nil, err
	}

	opts := repository.ListOptions{Order: repository.OrderLikes, ViewerID: viewerID}
	out := &Tagged{Tag: tag}
	if out.Posts, err = everyPage(opts, func(o repository.ListOptions) ([]models.Post, error) {
		return s.posts.ListByTag(ctx, tag.ID, o)
	}); err != nil {
		return nil, err
	}
	if out.Reels, err = everyPage(opts, func(o repository.ListOptions) ([]models.Reel, error) {
		return s.reels.ListByTag(ctx, tag.ID, o)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// TopReels orders reels by engagement.
func (s *FeedService) TopReels(ctx context.Context, viewerID uint, page repository.Page) ([]models.Reel, error) {
	return s.reels.List(ctx, repository.ListOptions{Page: page, Order: repository.OrderEngagement, ViewerID: viewerID})
}
