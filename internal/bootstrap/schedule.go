package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shutter/internal/observability"
	"shutter/internal/search"

	"github.com/robfig/cron/v3"
)

// Reindexer is the part of search.Reindexer the schedule needs.
type Reindexer interface {
	Reindex(ctx context.Context, scope search.Scope) (search.Stats, error)
}

// ScheduleReindex runs a full reindex on the cron spec until ctx ends. An
// empty spec schedules nothing and returns a nil Cron. Runs never overlap.
func ScheduleReindex(ctx context.Context, spec string, r Reindexer) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		start := time.Now()
		stats, err := r.Reindex(ctx, search.ScopeAll)
		if err != nil {
			observability.Logger.Warn("scheduled reindex failed", slog.String("error", err.Error()))
			return
		}
		observability.Logger.Info("scheduled reindex completed",
			slog.Int("posts", stats.Posts),
			slog.Int("users", stats.Users),
			slog.Int("tags", stats.Tags),
			slog.Int("pruned", stats.Pruned),
			slog.Int("failed", stats.Failed),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_REINDEX_CRON %q: %w", spec, err)
	}

	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
