// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/bearkuang/oristagram/internal/models"
	"github.com/bearkuang/oristagram/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account. It passes the
// registration password rules so seeded users can log in.
const DefaultPassword = "Seed!Passw0rd"

// Factory builds domain entities and persists them through the repositories,
// so seeded tags, media and mentions go through the same write path as the API.
type Factory struct {
	opts Options
	rng  *rand.Rand

	users      repository.UserRepository
	posts      repository.PostRepository
	reels      repository.ReelRepository
	engagement repository.EngagementRepository
	comments   repository.CommentRepository
	follows    repository.FollowRepository
	chat       repository.ChatRepository

	passwordHash string
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)
	return &Factory{
		opts: opts,
		// #nosec G404: acceptable for seeding
		rng:        rand.New(rand.NewSource(seed)),
		users:      repository.NewUserRepository(db),
		posts:      repository.NewPostRepository(db),
		reels:      repository.NewReelRepository(db),
		engagement: repository.NewEngagementRepository(db),
		comments:   repository.NewCommentRepository(db),
		follows:    repository.NewFollowRepository(db),
		chat:       repository.NewChatRepository(db),
		nextID:     1000,
	}
}

// hash computes the shared password hash once. FastHash trades bcrypt cost
// for speed on large presets.
func (f *Factory) hash() (string, error) {
	if f.passwordHash != "" {
		return f.passwordHash, nil
	}
	cost := bcrypt.DefaultCost
	if f.opts.FastHash {
		cost = bcrypt.MinCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return "", err
	}
	f.passwordHash = string(hashed)
	return f.passwordHash, nil
}

// createdAt spreads timestamps over the last MaxDays days.
func (f *Factory) createdAt() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute
	return time.Now().Add(-back)
}

func (f *Factory) dryRunID() uint {
	f.nextID++
	return f.nextID
}

// CreateUser constructs and persists a sample `models.User`.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	hashed, err := f.hash()
	if err != nil {
		return nil, err
	}

	username := strings.ToLower(fmt.Sprintf("%s_%s%d",
		gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Number(100, 9999)))
	if len(username) > 30 {
		username = username[len(username)-30:]
	}
	birth := gofakeit.DateRange(time.Now().AddDate(-60, 0, 0), time.Now().AddDate(-16, 0, 0))
	user := &models.User{
		Username:       username,
		Email:          username + "@example.com",
		Password:       hashed,
		Bio:            gofakeit.Sentence(10),
		BirthDate:      &birth,
		ProfilePicture: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
		Website:        gofakeit.URL(),
		IsActive:       true,
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		user.ID = f.dryRunID()
		log.Printf("[dry-run] CreateUser: %s", user.Username)
		return user, nil
	}

	if err := f.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// pickTags draws up to n distinct tags from pool.
func (f *Factory) pickTags(pool []string, n int) []string {
	if len(pool) == 0 || n <= 0 {
		return nil
	}
	if n > len(pool) {
		n = len(pool)
	}
	tags := make([]string, 0, n)
	for _, i := range f.rng.Perm(len(pool))[:n] {
		tags = append(tags, pool[i])
	}
	return tags
}

func (f *Factory) imageMedia() models.Media {
	key := gofakeit.UUID()
	return models.Media{
		Kind:      models.MediaKindImage,
		MimeType:  "image/jpeg",
		Path:      "seed/" + key + ".jpg",
		URL:       fmt.Sprintf("https://picsum.photos/seed/%s/1080/1080", key),
		Width:     1080,
		Height:    1080,
		SizeBytes: int64(gofakeit.Number(80_000, 900_000)),
	}
}

func (f *Factory) videoMedia(maxSeconds int) models.Media {
	key := gofakeit.UUID()
	return models.Media{
		Kind:            models.MediaKindVideo,
		MimeType:        "video/mp4",
		Path:            "seed/" + key + ".mp4",
		URL:             fmt.Sprintf("https://example.com/media/seed/%s.mp4", key),
		DurationSeconds: float64(f.rng.Intn(maxSeconds-4) + 5),
		SizeBytes:       int64(gofakeit.Number(1_000_000, 30_000_000)),
	}
}

// caption is fake text with the tags appended as hashtags.
func caption(tags []string) string {
	text := gofakeit.Sentence(gofakeit.Number(4, 14))
	for _, tag := range tags {
		text += " #" + tag
	}
	return text
}

// CreatePost persists a post by author with 1-3 images, tags from the pool
// and mentions of the given usernames.
func (f *Factory) CreatePost(ctx context.Context, author *models.User, tagPool []string, mentions []string) (*models.Post, error) {
	tags := f.pickTags(tagPool, f.rng.Intn(4))
	post := &models.Post{
		UserID:    author.ID,
		Content:   caption(tags),
		CreatedAt: f.createdAt(),
	}
	rel := repository.Relations{Tags: tags, Mentions: mentions}
	for i := f.rng.Intn(3) + 1; i > 0; i-- {
		rel.Media = append(rel.Media, f.imageMedia())
	}

	if f.opts.DryRun {
		post.ID = f.dryRunID()
		log.Printf("[dry-run] CreatePost: user=%d tags=%v", author.ID, tags)
		return post, nil
	}
	if err := f.posts.Create(ctx, post, rel); err != nil {
		return nil, err
	}
	return post, nil
}

// CreateReel persists a reel with one video inside the reel duration ceiling.
func (f *Factory) CreateReel(ctx context.Context, author *models.User, tagPool []string) (*models.Reel, error) {
	tags := f.pickTags(tagPool, f.rng.Intn(3)+1)
	reel := &models.Reel{
		UserID:    author.ID,
		Content:   caption(tags),
		CreatedAt: f.createdAt(),
	}
	rel := repository.Relations{
		Media: []models.Media{f.videoMedia(90)},
		Tags:  tags,
	}

	if f.opts.DryRun {
		reel.ID = f.dryRunID()
		log.Printf("[dry-run] CreateReel: user=%d tags=%v", author.ID, tags)
		return reel, nil
	}
	if err := f.reels.Create(ctx, reel, rel); err != nil {
		return nil, err
	}
	return reel, nil
}

// CreateComment persists a comment by user on target, optionally replying to parent.
func (f *Factory) CreateComment(ctx context.Context, user *models.User, target models.Target, parent *models.Comment) (*models.Comment, error) {
	comment := &models.Comment{
		UserID: user.ID,
		Text:   gofakeit.Sentence(gofakeit.Number(3, 12)),
	}
	comment.AttachTo(target)
	if parent != nil {
		comment.ParentID = &parent.ID
	}

	if f.opts.DryRun {
		comment.ID = f.dryRunID()
		return comment, nil
	}
	if err := f.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Follow persists follower -> followed. Self edges are never created.
func (f *Factory) Follow(ctx context.Context, follower, followed *models.User) error {
	if follower.ID == followed.ID || f.opts.DryRun {
		return nil
	}
	return f.follows.Create(ctx, &models.Follow{FollowerID: follower.ID, FollowedID: followed.ID})
}

// Like persists a like from user on target.
func (f *Factory) Like(ctx context.Context, user *models.User, target models.Target) error {
	if f.opts.DryRun {
		return nil
	}
	return f.engagement.Like(ctx, user.ID, target)
}

// Mark persists a save from user on target.
func (f *Factory) Mark(ctx context.Context, user *models.User, target models.Target) error {
	if f.opts.DryRun {
		return nil
	}
	return f.engagement.Mark(ctx, user.ID, target)
}

// CreateConversation opens (or reuses) the room between a and b and exchanges n messages.
func (f *Factory) CreateConversation(ctx context.Context, a, b *models.User, n int) (*models.ChatRoom, error) {
	if f.opts.DryRun {
		return &models.ChatRoom{ID: f.dryRunID()}, nil
	}
	room, err := f.chat.FindSharedRoom(ctx, a.ID, b.ID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		if room, err = f.chat.CreateRoom(ctx, a.ID, b.ID); err != nil {
			return nil, err
		}
	}
	for i := 0; i < n; i++ {
		sender, receiver := a, b
		if i%2 == 1 {
			sender, receiver = b, a
		}
		msg := &models.Message{
			ChatRoomID: room.ID,
			SenderID:   sender.ID,
			ReceiverID: receiver.ID,
			Content:    gofakeit.Sentence(gofakeit.Number(2, 10)),
		}
		if err := f.chat.CreateMessage(ctx, msg); err != nil {
			return nil, err
		}
	}
	return room, nil
}
