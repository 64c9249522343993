// Command seed loads demo data for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"shutter/internal/bootstrap"
	"shutter/internal/config"
	"shutter/internal/observability"
	"shutter/internal/seed"
)

func main() {
	opts := seed.DefaultOptions
	flag.IntVar(&opts.Users, "users", opts.Users, "Number of users to create")
	flag.IntVar(&opts.PostsPerUser, "posts", opts.PostsPerUser, "Posts per user")
	flag.IntVar(&opts.FollowsPerUser, "follows", opts.FollowsPerUser, "Accounts each user follows")
	flag.IntVar(&opts.LikesPerPost, "likes", opts.LikesPerPost, "Likes per public post")
	flag.IntVar(&opts.CommentsPerPost, "comments", opts.CommentsPerPost, "Comments per public post")
	flag.IntVar(&opts.ImageEvery, "image-every", opts.ImageEvery, "Attach an image to every Nth post (0 disables)")
	flag.Int64Var(&opts.RandSeed, "seed", 0, "Random seed (0 picks one)")
	clean := flag.Bool("clean", true, "Clear existing data before seeding")
	flag.Parse()

	if err := run(opts, *clean); err != nil {
		observability.Logger.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(opts seed.Options, clean bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		return errors.New("refusing to seed a production environment")
	}
	observability.InitLogger(cfg.Env)

	ctx := context.Background()
	db, rdb, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		return err
	}
	c, err := bootstrap.Build(ctx, cfg, db, rdb)
	if err != nil {
		return err
	}
	defer c.Close()

	if clean {
		if err := seed.Reset(ctx, c.DB, c.SearchDB, c.Cache); err != nil {
			return err
		}
		observability.Logger.Info("existing data cleared")
	}

	res, err := seed.NewSeeder(c.Users, c.Posts, c.Comments, opts).Run(ctx)
	if err != nil {
		return err
	}
	observability.Logger.Info("seeding complete",
		slog.Int("users", res.Users),
		slog.Int("posts", res.Posts),
		slog.String("password", seed.DefaultPassword),
	)
	return nil
}
