// Package seed populates a development database with demo accounts, posts
// and engagement. Everything is written through the services so the cache
// and the search index see the same events real traffic produces.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shutter/internal/cache"
	"shutter/internal/database"
	"shutter/internal/models"
	"shutter/internal/observability"
	"shutter/internal/search"
	"shutter/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// DefaultPassword is shared by every seeded account.
const DefaultPassword = "password123"

// Options sizes the generated data set.
type Options struct {
	Users           int
	PostsPerUser    int
	FollowsPerUser  int
	LikesPerPost    int
	CommentsPerPost int
	// ImageEvery attaches a generated image to every Nth post; 0 disables it.
	ImageEvery int
	// RandSeed fixes the generator; 0 picks a random one.
	RandSeed int64
}

// DefaultOptions is the data set cmd/seed loads without flags.
var DefaultOptions = Options{
	Users:           25,
	PostsPerUser:    4,
	FollowsPerUser:  6,
	LikesPerPost:    5,
	CommentsPerPost: 2,
	ImageEvery:      3,
}

// Result counts what a run created.
type Result struct {
	Users    int
	Follows  int
	Posts    int
	Likes    int
	Comments int
}

// Seeder drives the services with fake data.
type Seeder struct {
	users    *service.UserService
	posts    *service.PostService
	comments *service.CommentService
	opts     Options
	faker    *gofakeit.Faker
}

func NewSeeder(users *service.UserService, posts *service.PostService, comments *service.CommentService, opts Options) *Seeder {
	return &Seeder{
		users:    users,
		posts:    posts,
		comments: comments,
		opts:     opts,
		faker:    gofakeit.New(opts.RandSeed),
	}
}

// Run creates users, then the follow graph, then posts, then likes and
// comments on public posts.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	users, err := s.seedUsers(ctx)
	if err != nil {
		return res, err
	}
	res.Users = len(users)
	observability.Logger.Info("seeded users", slog.Int("count", res.Users))

	if res.Follows, err = s.seedFollows(ctx, users); err != nil {
		return res, err
	}
	observability.Logger.Info("seeded follows", slog.Int("count", res.Follows))

	posts, err := s.seedPosts(ctx, users)
	if err != nil {
		return res, err
	}
	res.Posts = len(posts)
	observability.Logger.Info("seeded posts", slog.Int("count", res.Posts))

	if res.Likes, res.Comments, err = s.seedEngagement(ctx, users, posts); err != nil {
		return res, err
	}
	observability.Logger.Info("seeded engagement",
		slog.Int("likes", res.Likes),
		slog.Int("comments", res.Comments),
	)
	return res, nil
}

func (s *Seeder) seedUsers(ctx context.Context) ([]*models.User, error) {
	users := make([]*models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		username := s.username(i)
		res, err := s.users.Register(ctx, service.RegisterInput{
			Username: username,
			Email:    username + "@example.com",
			Password: DefaultPassword,
		})
		if err != nil {
			return users, fmt.Errorf("register %s: %w", username, err)
		}
		users = append(users, res.User)
	}
	return users, nil
}

func (s *Seeder) seedFollows(ctx context.Context, users []*models.User) (int, error) {
	count := 0
	for i, u := range users {
		for _, j := range s.pick(len(users), s.opts.FollowsPerUser, i) {
			if _, err := s.users.ToggleFollow(ctx, u.ID, users[j].ID); err != nil {
				return count, fmt.Errorf("follow %d -> %d: %w", u.ID, users[j].ID, err)
			}
			count++
		}
	}
	return count, nil
}

func (s *Seeder) seedPosts(ctx context.Context, users []*models.User) ([]*models.PostView, error) {
	posts := make([]*models.PostView, 0, len(users)*s.opts.PostsPerUser)
	for _, u := range users {
		for i := 0; i < s.opts.PostsPerUser; i++ {
			in := service.CreatePostInput{
				UserID:     u.ID,
				Caption:    s.caption(users),
				Visibility: s.visibility(),
			}
			if s.opts.ImageEvery > 0 && (len(posts)+1)%s.opts.ImageEvery == 0 {
				img, err := s.image()
				if err != nil {
					return posts, err
				}
				in.Image = img
			}
			post, err := s.posts.CreatePost(ctx, in)
			if err != nil {
				return posts, fmt.Errorf("create post for %d: %w", u.ID, err)
			}
			posts = append(posts, post)
		}
	}
	return posts, nil
}

// seedEngagement only touches public posts so every actor can see them.
func (s *Seeder) seedEngagement(ctx context.Context, users []*models.User, posts []*models.PostView) (likes, comments int, err error) {
	for _, p := range posts {
		if p.Visibility != models.VisibilityPublic {
			continue
		}
		for _, j := range s.pick(len(users), s.opts.LikesPerPost, -1) {
			if _, err := s.posts.ToggleLike(ctx, p.ID, users[j].ID); err != nil {
				return likes, comments, fmt.Errorf("like post %d: %w", p.ID, err)
			}
			likes++
		}
		for _, j := range s.pick(len(users), s.opts.CommentsPerPost, -1) {
			_, err := s.comments.CreateComment(ctx, service.CreateCommentInput{
				UserID:  users[j].ID,
				PostID:  p.ID,
				Content: s.faker.Sentence(s.faker.Number(4, 14)),
			})
			if err != nil {
				return likes, comments, fmt.Errorf("comment on post %d: %w", p.ID, err)
			}
			comments++
		}
	}
	return likes, comments, nil
}

// pick returns up to k distinct indexes below n, never skip.
func (s *Seeder) pick(n, k, skip int) []int {
	out := make([]int, 0, k)
	for _, i := range s.faker.Rand.Perm(n) {
		if len(out) == k {
			break
		}
		if i != skip {
			out = append(out, i)
		}
	}
	return out
}

// Reset empties the primary tables, the search documents and every cache
// tier. searchDB may equal db.
func Reset(ctx context.Context, db, searchDB *gorm.DB, c *cache.Tiered) error {
	all := database.Models()
	for i := len(all) - 1; i >= 0; i-- {
		if err := deleteAll(ctx, db, all[i]); err != nil {
			return err
		}
	}
	for _, m := range []interface{}{&search.PostDocument{}, &search.UserDocument{}, &search.TagDocument{}} {
		if err := deleteAll(ctx, searchDB, m); err != nil {
			return err
		}
	}
	if c != nil {
		c.DeleteByPattern(ctx, "*")
	}
	return nil
}

func deleteAll(ctx context.Context, db *gorm.DB, model interface{}) error {
	err := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error
	if err != nil {
		return fmt.Errorf("clear %T: %w", model, err)
	}
	return nil
}

// sanitize lowercases s and drops everything outside [a-z0-9_].
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, s)
}
