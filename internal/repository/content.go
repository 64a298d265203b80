package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
)

// Order selects how a content listing is sorted.
type Order int

const (
	OrderNewest Order = iota
	OrderOldest
	// OrderLikes sorts by like count, newest first on ties.
	OrderLikes
	// OrderEngagement sorts by likes plus comments, newest first on ties.
	OrderEngagement
)

// ListOptions combine paging and ordering for content listings.
type ListOptions struct {
	Page
	Order    Order
	ViewerID uint
}

// Relations are the rows written alongside a post or reel.
// Tags may repeat; every occurrence bumps the tag counter, links are kept as a set.
type Relations struct {
	Media    []models.Media
	Tags     []string
	Mentions []string
}

// ContentRepository is the store shared by posts and reels.
type ContentRepository[T any] interface {
	Create(ctx context.Context, item *T, rel Relations) error
	GetByID(ctx context.Context, id, viewerID uint) (*T, error)
	AuthorOf(ctx context.Context, id uint) (uint, error)
	List(ctx context.Context, opts ListOptions) ([]T, error)
	ListByUser(ctx context.Context, userID uint, opts ListOptions) ([]T, error)
	ListByFollowed(ctx context.Context, followerID uint, since time.Time, opts ListOptions) ([]T, error)
	ListSince(ctx context.Context, since time.Time, opts ListOptions) ([]T, error)
	ListByTag(ctx context.Context, tagID uint, opts ListOptions) ([]T, error)
	ListMarkedBy(ctx context.Context, userID uint, opts ListOptions) ([]T, error)
	UpdateWithRelations(ctx context.Context, id uint, upd ContentUpdate) error
	Delete(ctx context.Context, id uint) ([]models.Media, error)
}

// PostRepository stores feed posts.
type PostRepository = ContentRepository[models.Post]

// ReelRepository stores reels.
type ReelRepository = ContentRepository[models.Reel]

// contentTable names the tables a content kind lives in.
type contentTable struct {
	kind        models.TargetKind
	table       string
	fk          string
	tagJoin     string
	mentionJoin string
	resource    string
}

var (
	postTable = contentTable{
		kind:        models.TargetPost,
		table:       "posts",
		fk:          "post_id",
		tagJoin:     "post_tags",
		mentionJoin: "post_mentions",
		resource:    "Post",
	}
	reelTable = contentTable{
		kind:        models.TargetReel,
		table:       "reels",
		fk:          "reel_id",
		tagJoin:     "reel_tags",
		mentionJoin: "reel_mentions",
		resource:    "Reels",
	}
)

func (t contentTable) target(id uint) models.Target {
	return models.Target{Kind: t.kind, ID: id}
}

func (t contentTable) likesCount() string {
	return fmt.Sprintf("(SELECT COUNT(*) FROM likes WHERE likes.%s = %s.id)", t.fk, t.table)
}

func (t contentTable) commentsCount() string {
	return fmt.Sprintf("(SELECT COUNT(*) FROM comments WHERE comments.%s = %s.id)", t.fk, t.table)
}

// withDetails selects counts and the viewer's liked/marked flags in a single query.
func (t contentTable) withDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	selectQuery := fmt.Sprintf("%s.*, %s AS likes_count, %s AS comments_count",
		t.table, t.likesCount(), t.commentsCount())

	if viewerID != 0 {
		return db.Select(selectQuery+fmt.Sprintf(
			", EXISTS(SELECT 1 FROM likes WHERE likes.%[1]s = %[2]s.id AND likes.user_id = ?) AS liked"+
				", EXISTS(SELECT 1 FROM marks WHERE marks.%[1]s = %[2]s.id AND marks.user_id = ?) AS marked",
			t.fk, t.table), viewerID, viewerID)
	}
	return db.Select(selectQuery + ", false AS liked, false AS marked")
}

func (t contentTable) order(db *gorm.DB, o Order) *gorm.DB {
	created := t.table + ".created_at"
	id := t.table + ".id"
	switch o {
	case OrderOldest:
		return db.Order(created + " ASC").Order(id + " ASC")
	case OrderLikes:
		return db.Order("likes_count DESC").Order(created + " DESC").Order(id + " DESC")
	case OrderEngagement:
		// Aliases cannot appear inside expressions in PostgreSQL ORDER BY.
		return db.Order(t.likesCount() + " + " + t.commentsCount() + " DESC").Order(created + " DESC").Order(id + " DESC")
	default:
		return db.Order(created + " DESC").Order(id + " DESC")
	}
}

func hydrate(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User").
		Preload("Media", func(db *gorm.DB) *gorm.DB { return db.Order("media.id ASC") }).
		Preload("Tags").
		Preload("Mentions")
}

// contentStore implements ContentRepository for posts and reels.
type contentStore[T any, PT interface {
	*T
	models.Content
}] struct {
	db    *gorm.DB
	table contentTable
}

// NewPostRepository returns the GORM-backed post store.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &contentStore[models.Post, *models.Post]{db: db, table: postTable}
}

// NewReelRepository returns the GORM-backed reel store.
func NewReelRepository(db *gorm.DB) ReelRepository {
	return &contentStore[models.Reel, *models.Reel]{db: db, table: reelTable}
}

// Create writes the item, its media rows, tags and mentions in one transaction.
func (s *contentStore[T, PT]) Create(ctx context.Context, item *T, rel Relations) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User", "Media", "Tags", "Mentions").Create(item).Error; err != nil {
			return err
		}
		target := PT(item).Target()

		for i := range rel.Media {
			rel.Media[i].AttachTo(target)
		}
		if len(rel.Media) > 0 {
			if err := tx.Create(&rel.Media).Error; err != nil {
				return err
			}
		}

		if err := s.addTags(tx, item, rel.Tags); err != nil {
			return err
		}
		return s.addMentions(tx, item, rel.Mentions)
	})
	if err != nil {
		return internal(err)
	}
	return nil
}

// addTags upserts each tag, bumps its counter once per occurrence and links the distinct set.
func (s *contentStore[T, PT]) addTags(tx *gorm.DB, item *T, names []string) error {
	if len(names) == 0 {
		return nil
	}
	linked := make([]models.Tag, 0, len(names))
	seen := make(map[uint]struct{}, len(names))
	for _, name := range names {
		tag, err := upsertTag(tx, name)
		if err != nil {
			return err
		}
		if err := incrementTag(tx, tag.ID); err != nil {
			return err
		}
		if _, dup := seen[tag.ID]; dup {
			continue
		}
		seen[tag.ID] = struct{}{}
		linked = append(linked, *tag)
	}
	return tx.Model(item).Omit("Tags.*").Association("Tags").Append(linked)
}

func (s *contentStore[T, PT]) addMentions(tx *gorm.DB, item *T, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	users, err := findUsersByName(tx, usernames)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}
	return tx.Model(item).Omit("Mentions.*").Association("Mentions").Append(users)
}

func (s *contentStore[T, PT]) GetByID(ctx context.Context, id, viewerID uint) (*T, error) {
	var item T
	db := s.table.withDetails(s.db.WithContext(ctx).Model(new(T)), viewerID)
	if err := hydrate(db).Where(s.table.table+".id = ?", id).First(&item).Error; err != nil {
		return nil, notFoundOr(err, s.table.resource, id)
	}
	return &item, nil
}

// AuthorOf returns the owner of the item, or NOT_FOUND.
func (s *contentStore[T, PT]) AuthorOf(ctx context.Context, id uint) (uint, error) {
	var row struct{ UserID uint }
	if err := s.db.WithContext(ctx).Model(new(T)).Select("user_id").Where("id = ?", id).Take(&row).Error; err != nil {
		return 0, notFoundOr(err, s.table.resource, id)
	}
	return row.UserID, nil
}

func (s *contentStore[T, PT]) list(ctx context.Context, opts ListOptions, scope func(*gorm.DB) *gorm.DB) ([]T, error) {
	items := make([]T, 0)
	db := s.table.withDetails(s.db.WithContext(ctx).Model(new(T)), opts.ViewerID)
	db = s.table.order(hydrate(db).Scopes(scope), opts.Order)
	if err := opts.Page.apply(db).Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

func (s *contentStore[T, PT]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	return s.list(ctx, opts, func(db *gorm.DB) *gorm.DB { return db })
}

func (s *contentStore[T, PT]) ListByUser(ctx context.Context, userID uint, opts ListOptions) ([]T, error) {
	return s.list(ctx, opts, func(db *gorm.DB) *gorm.DB {
		return db.Where(s.table.table+".user_id = ?", userID)
	})
}

// ListByFollowed returns items authored by accounts followerID follows, created at or after since.
// A zero since means no time bound.
func (s *contentStore[T, PT]) ListByFollowed(ctx context.Context, followerID uint, since time.Time, opts ListOptions) ([]T, error) {
	followed := s.db.Model(&models.Follow{}).Select("followed_id").Where("follower_id = ?", followerID)
	return s.list(ctx, opts, func(db *gorm.DB) *gorm.DB {
		db = db.Where(s.table.table+".user_id IN (?)", followed)
		if !since.IsZero() {
			db = db.Where(s.table.table+".created_at >= ?", since)
		}
		return db
	})
}

func (s *contentStore[T, PT]) ListSince(ctx context.Context, since time.Time, opts ListOptions) ([]T, error) {
	return s.list(ctx, opts, func(db *gorm.DB) *gorm.DB {
		return db.Where(s.table.table+".created_at >= ?", since)
	})
}

func (s *contentStore[T, PT]) ListByTag(ctx context.Context, tagID uint, opts ListOptions) ([]T, error) {
	tagged := s.db.Table(s.table.tagJoin).Select(s.table.fk).Where("tag_id = ?", tagID)
	return s.list(ctx, opts, func(db *gorm.DB) *gorm.DB {
		return db.Where(s.table.table+".id IN (?)", tagged)
	})
}

// ListMarkedBy returns the items userID has saved.
func (s *contentStore[T, PT]) ListMarkedBy(ctx context.Context, userID uint, opts ListOptions) ([]T, error) {
	marked := s.db.Model(&models.Mark{}).Select(s.table.fk).
		Where("user_id = ? AND "+s.table.fk+" IS NOT NULL", userID)
	return s.list(ctx, opts, func(db *gorm.DB) *gorm.DB {
		return db.Where(s.table.table+".id IN (?)", marked)
	})
}

// ContentUpdate holds the fields an edit touches. A nil field is left as it is.
type ContentUpdate struct {
	Content  *string
	Tags     *[]string
	Mentions *[]string
}

// UpdateWithRelations applies upd in one transaction. Tags and mentions that
// are present replace the old set. Tag counters are bumped for every tag
// added; removed tags keep their count.
func (s *contentStore[T, PT]) UpdateWithRelations(ctx context.Context, id uint, upd ContentUpdate) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item T
		if err := tx.Where("id = ?", id).Take(&item).Error; err != nil {
			return notFoundOr(err, s.table.resource, id)
		}
		fields := map[string]interface{}{"updated_at": time.Now()}
		if upd.Content != nil {
			fields["content"] = *upd.Content
		}
		if err := tx.Model(&item).Updates(fields).Error; err != nil {
			return err
		}
		if upd.Tags != nil {
			if err := tx.Model(&item).Association("Tags").Clear(); err != nil {
				return err
			}
			if err := s.addTags(tx, &item, *upd.Tags); err != nil {
				return err
			}
		}
		if upd.Mentions != nil {
			if err := tx.Model(&item).Association("Mentions").Clear(); err != nil {
				return err
			}
			return s.addMentions(tx, &item, *upd.Mentions)
		}
		return nil
	})
	if err != nil {
		return internal(err)
	}
	return nil
}

// Delete removes the item with its likes, marks, comments, media and links in one transaction.
// The removed media rows are returned so the caller can delete the files after commit.
func (s *contentStore[T, PT]) Delete(ctx context.Context, id uint) ([]models.Media, error) {
	var removed []models.Media
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item T
		if err := tx.Where("id = ?", id).Take(&item).Error; err != nil {
			return notFoundOr(err, s.table.resource, id)
		}
		where := s.table.fk + " = ?"

		if err := tx.Where(where, id).Find(&removed).Error; err != nil {
			return err
		}
		for _, model := range []interface{}{&models.Like{}, &models.Mark{}, &models.Comment{}, &models.Media{}} {
			if err := tx.Where(where, id).Delete(model).Error; err != nil {
				return err
			}
		}
		for _, join := range []string{s.table.tagJoin, s.table.mentionJoin} {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", join, s.table.fk), id).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return nil, internal(err)
	}
	return removed, nil
}
