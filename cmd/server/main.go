// Command server runs the Shutter HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shutter/internal/bootstrap"
	"shutter/internal/config"
	"shutter/internal/observability"
	"shutter/internal/server"
)

const serviceVersion = "1.0.0"

func main() {
	if err := run(); err != nil {
		observability.Logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, bootstrap.Tracing(cfg, "shutter-api", serviceVersion))
	if err != nil {
		return err
	}

	db, rdb, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		return err
	}
	c, err := bootstrap.Build(ctx, cfg, db, rdb)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			observability.Logger.Warn("close runtime", slog.String("error", err.Error()))
		}
	}()

	// The schedule stops itself when ctx ends.
	if _, err := bootstrap.ScheduleReindex(ctx, cfg.SearchReindexCron, c.Reindexer); err != nil {
		return err
	}

	srv := server.New(server.Deps{
		Config:        cfg,
		DB:            db,
		Redis:         rdb,
		Auth:          c.Auth,
		Users:         c.Users,
		Posts:         c.Posts,
		Comments:      c.Comments,
		Notifications: c.Notifications,
		Search:        c.Search,
		Hub:           c.Hub,
		Notifier:      c.Notifier,
		UploadDir:     c.UploadDir,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	observability.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		observability.Logger.Error("Server shutdown error", slog.String("error", err.Error()))
	}
	return shutdownTracing(shutdownCtx)
}
