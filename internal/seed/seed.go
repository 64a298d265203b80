package seed

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bearkuang/oristagram/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int  `yaml:"users"`
	NumPosts    int  `yaml:"posts"`
	NumReels    int  `yaml:"reels"`
	ShouldClean bool `yaml:"clean"`

	// Per-user or per-item upper bounds; actual counts are random below them.
	FollowsPerUser  int `yaml:"follows_per_user"`
	LikesPerPost    int `yaml:"likes_per_post"`
	CommentsPerPost int `yaml:"comments_per_post"`
	Conversations   int `yaml:"conversations"`

	Tags     []string `yaml:"tags"`
	MaxDays  int      `yaml:"max_days"`
	FastHash bool     `yaml:"fast_hash"`
	DryRun   bool     `yaml:"-"`
	RandSeed int64    `yaml:"rand_seed"`
}

var defaultTags = []string{
	"travel", "food", "sunset", "beach", "coffee", "fitness", "art", "music",
	"nature", "city", "friends", "weekend", "ootd", "pets", "books", "photography",
}

func (o Options) withDefaults() Options {
	if o.FollowsPerUser <= 0 {
		o.FollowsPerUser = 8
	}
	if o.LikesPerPost <= 0 {
		o.LikesPerPost = 10
	}
	if o.CommentsPerPost <= 0 {
		o.CommentsPerPost = 4
	}
	if len(o.Tags) == 0 {
		o.Tags = defaultTags
	}
	return o
}

// Seeder fills a database with a connected social graph and content.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder creates a seeder bound to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	opts = opts.withDefaults()
	return &Seeder{db: db, opts: opts, factory: NewFactory(db, opts)}
}

// seededTables lists every data table, children before parents.
var seededTables = []string{
	"messages", "chat_room_participants", "chat_rooms",
	"likes", "marks", "comments",
	"post_mentions", "reel_mentions", "post_tags", "reel_tags", "media",
	"posts", "reels", "tags", "follows", "users",
}

// ClearAll removes every seeded row.
func (s *Seeder) ClearAll() error {
	if s.opts.DryRun {
		log.Println("[dry-run] ClearAll skipped")
		return nil
	}
	log.Println("🗑️  Clearing existing data...")
	if s.db.Dialector.Name() == "postgres" {
		sql := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE;", strings.Join(seededTables, ", "))
		return s.db.Exec(sql).Error
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, table := range seededTables {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// Run seeds users, follows and content according to the seeder options.
func (s *Seeder) Run(ctx context.Context) error {
	log.Printf("🌱 Starting database seeding with %d users, %d posts and %d reels...",
		s.opts.NumUsers, s.opts.NumPosts, s.opts.NumReels)

	if s.opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return fmt.Errorf("failed to clear data: %w", err)
		}
	}

	users, err := s.SeedSocialMesh(ctx, s.opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("✓ %d users created", len(users))

	stats, err := s.SeedEngagement(ctx, users, s.opts.NumPosts)
	if err != nil {
		return fmt.Errorf("failed to create content: %w", err)
	}
	log.Printf("✓ %s", stats)

	log.Println("🎉 Database seeding completed successfully!")
	return nil
}

// SeedSocialMesh creates n users and follow edges between them.
func (s *Seeder) SeedSocialMesh(ctx context.Context, n int) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for len(users) < n {
		user, err := s.createUniqueUser(ctx)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
		if len(users)%100 == 0 {
			log.Printf("Created %d users...", len(users))
		}
	}

	for _, follower := range users {
		for _, followed := range s.sample(users, s.opts.FollowsPerUser) {
			if err := tolerateConflict(s.factory.Follow(ctx, follower, followed)); err != nil {
				return nil, err
			}
		}
	}
	return users, nil
}

// createUniqueUser retries generated usernames that already exist.
func (s *Seeder) createUniqueUser(ctx context.Context) (*models.User, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		user, err := s.factory.CreateUser(ctx)
		if err == nil {
			return user, nil
		}
		if models.ErrorCode(err) != models.CodeConflict {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// EngagementStats counts what SeedEngagement wrote.
type EngagementStats struct {
	Posts         int
	Reels         int
	Likes         int
	Marks         int
	Comments      int
	Conversations int
}

func (e EngagementStats) String() string {
	return fmt.Sprintf("%d posts, %d reels, %d likes, %d marks, %d comments, %d conversations",
		e.Posts, e.Reels, e.Likes, e.Marks, e.Comments, e.Conversations)
}

// SeedEngagement creates numPosts posts and the configured number of reels
// by random authors, then likes, marks, comments and conversations among users.
func (s *Seeder) SeedEngagement(ctx context.Context, users []*models.User, numPosts int) (EngagementStats, error) {
	var stats EngagementStats
	if len(users) == 0 {
		return stats, nil
	}

	targets := make([]models.Target, 0, numPosts+s.opts.NumReels)
	for i := 0; i < numPosts; i++ {
		author := s.pick(users)
		var mentions []string
		if s.factory.rng.Intn(4) == 0 {
			mentions = []string{s.pick(users).Username}
		}
		post, err := s.factory.CreatePost(ctx, author, s.opts.Tags, mentions)
		if err != nil {
			return stats, fmt.Errorf("post: %w", err)
		}
		targets = append(targets, post.Target())
		stats.Posts++
	}
	for i := 0; i < s.opts.NumReels; i++ {
		reel, err := s.factory.CreateReel(ctx, s.pick(users), s.opts.Tags)
		if err != nil {
			return stats, fmt.Errorf("reel: %w", err)
		}
		targets = append(targets, reel.Target())
		stats.Reels++
	}

	for _, target := range targets {
		for _, user := range s.sample(users, s.opts.LikesPerPost) {
			if err := tolerateConflict(s.factory.Like(ctx, user, target)); err != nil {
				return stats, fmt.Errorf("like: %w", err)
			}
			stats.Likes++
			if s.factory.rng.Intn(3) == 0 {
				if err := tolerateConflict(s.factory.Mark(ctx, user, target)); err != nil {
					return stats, fmt.Errorf("mark: %w", err)
				}
				stats.Marks++
			}
		}

		var parent *models.Comment
		for _, user := range s.sample(users, s.opts.CommentsPerPost) {
			// roughly one in three comments continues the previous thread
			var replyTo *models.Comment
			if parent != nil && s.factory.rng.Intn(3) == 0 {
				replyTo = parent
			}
			comment, err := s.factory.CreateComment(ctx, user, target, replyTo)
			if err != nil {
				return stats, fmt.Errorf("comment: %w", err)
			}
			if replyTo == nil {
				parent = comment
			}
			stats.Comments++
		}
	}

	if len(users) > 1 {
		for i := 0; i < s.opts.Conversations; i++ {
			pair := s.factory.rng.Perm(len(users))[:2]
			a, b := users[pair[0]], users[pair[1]]
			if _, err := s.factory.CreateConversation(ctx, a, b, s.factory.rng.Intn(8)+1); err != nil {
				return stats, fmt.Errorf("conversation: %w", err)
			}
			stats.Conversations++
		}
	}
	return stats, nil
}

func (s *Seeder) pick(users []*models.User) *models.User {
	return users[s.factory.rng.Intn(len(users))]
}

// sample returns up to max distinct users, at least one when users is non-empty.
func (s *Seeder) sample(users []*models.User, max int) []*models.User {
	if len(users) == 0 || max <= 0 {
		return nil
	}
	n := s.factory.rng.Intn(max) + 1
	if n > len(users) {
		n = len(users)
	}
	out := make([]*models.User, 0, n)
	for _, i := range s.factory.rng.Perm(len(users))[:n] {
		out = append(out, users[i])
	}
	return out
}

// tolerateConflict ignores duplicate edges picked by random sampling.
func tolerateConflict(err error) error {
	if err != nil && models.ErrorCode(err) == models.CodeConflict {
		return nil
	}
	return err
}
