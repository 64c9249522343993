// Package bootstrap connects the runtime dependencies and assembles the
// service graph shared by the server, the seeder and the operator CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shutter/internal/blob"
	"shutter/internal/cache"
	"shutter/internal/config"
	"shutter/internal/database"
	"shutter/internal/events"
	"shutter/internal/notifications"
	"shutter/internal/observability"
	"shutter/internal/recommend"
	"shutter/internal/repository"
	"shutter/internal/search"
	"shutter/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InitRuntime connects to the primary store and Redis. An unreachable Redis
// is logged and the client is kept, so the shared tier recovers on its own;
// only a malformed REDIS_URL yields a nil client.
func InitRuntime(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		observability.Logger.Warn("redis unavailable, continuing with the local cache tier",
			slog.String("error", err.Error()))
	}
	return db, rdb, nil
}

// Components is the assembled service graph.
type Components struct {
	DB       *gorm.DB
	SearchDB *gorm.DB
	Redis    *redis.Client

	Cache      *cache.Tiered
	Index      search.Index
	Reindexer  *search.Reindexer
	Blobs      blob.Store
	Dispatcher *events.Dispatcher
	Notifier   *notifications.Notifier
	Hub        *notifications.Hub

	Auth          *service.AuthService
	Users         *service.UserService
	Posts         *service.PostService
	Comments      *service.CommentService
	Notifications *service.NotificationService
	Search        *service.SearchService

	// UploadDir is set when blobs are stored on the local filesystem.
	UploadDir string
}

// Build wires repositories, cache tiers, the guarded search index, the blob
// store and the event listeners into services. rdb may be nil.
func Build(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Components, error) {
	searchDB, err := openSearchDB(cfg, db)
	if err != nil {
		return nil, err
	}

	blobs, uploadDir, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tiers := make([]cache.Backend, 0, 2)
	if rdb != nil {
		tiers = append(tiers, cache.NewRedisBackend(rdb))
	}
	tiers = append(tiers, cache.NewMemoryBackend(cfg.CacheLocalSize))

	c := &Components{
		DB:        db,
		SearchDB:  searchDB,
		Redis:     rdb,
		Cache:     cache.NewTiered(cfg.CacheDefaultTTL, tiers...),
		Blobs:     blobs,
		UploadDir: uploadDir,
		Notifier:  notifications.NewNotifier(rdb),
		Hub:       notifications.NewHub(),
		Auth:      service.NewAuthService(cfg.JWTSecret, cfg.JWTIssuer, time.Duration(cfg.JWTTTLHours)*time.Hour),
	}
	c.Index = search.NewGuarded(search.NewGormIndex(searchDB), search.BreakerSettings{
		OpenTimeout: cfg.SearchBreakerTimeout,
	})

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	tagRepo := repository.NewTagRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	docs := repository.NewDocuments(db)

	c.Reindexer = search.NewReindexer(docs, c.Index, 0)
	c.Dispatcher = events.NewDispatcher(
		events.NewCacheInvalidator(c.Cache),
		events.NewIndexUpdater(c.Index, docs),
		events.NewNotificationListener(notificationRepo, c.Notifier),
	)

	var recommender recommend.Recommender
	if client := recommend.NewClient(cfg.RecommendURL, cfg.RecommendTimeout); client != nil {
		recommender = client
	}

	c.Users = service.NewUserService(userRepo, c.Auth, blobs, cfg.AvatarMaxSizeMB<<20, c.Dispatcher)
	c.Posts = service.NewPostService(postRepo, userRepo, c.Cache, blobs, recommender, c.Dispatcher)
	c.Comments = service.NewCommentService(commentRepo, postRepo, userRepo, c.Dispatcher)
	c.Notifications = service.NewNotificationService(notificationRepo)
	c.Search = service.NewSearchService(c.Index, postRepo, userRepo, tagRepo, c.Cache)
	return c, nil
}

// openSearchDB returns the database holding the index tables: the primary
// store unless SEARCH_DSN names a dedicated one.
func openSearchDB(cfg *config.Config, primary *gorm.DB) (*gorm.DB, error) {
	db := primary
	if cfg.SearchDSN != "" {
		var err error
		if db, err = database.Open(cfg.DBDriver, cfg.SearchDSN); err != nil {
			return nil, fmt.Errorf("search database: %w", err)
		}
	}
	if !cfg.IsProduction() {
		if err := search.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate search schema: %w", err)
		}
	}
	return db, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, string, error) {
	switch cfg.BlobDriver {
	case "s3":
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("s3 blob store: %w", err)
		}
		return store, "", nil
	case "local", "":
		store, err := blob.NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	}
	return nil, "", fmt.Errorf("unsupported BLOB_DRIVER %q", cfg.BlobDriver)
}

// Close releases what InitRuntime and Build opened.
func (c *Components) Close() error {
	var errs []error
	if c.SearchDB != nil && c.SearchDB != c.DB {
		if sqlDB, err := c.SearchDB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	return errors.Join(errs...)
}
