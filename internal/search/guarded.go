package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shutter/internal/observability"

	"github.com/sony/gobreaker"
)

// Guarded wraps an Index in a circuit breaker. After consecutive failures the
// breaker opens and calls fail fast with ErrUnavailable until it half-opens.
type Guarded struct {
	next Index
	cb   *gobreaker.CircuitBreaker
}

var _ Index = (*Guarded)(nil)

// BreakerSettings tunes the breaker.
type BreakerSettings struct {
	// MaxFailures is the consecutive failure count that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// NewGuarded wraps next.
func NewGuarded(next Index, s BreakerSettings) *Guarded {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search-index",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.Logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return &Guarded{next: next, cb: cb}
}

// State reports the breaker state, for readiness reporting.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}

func guard[T any](g *Guarded, fn func() (T, error)) (T, error) {
	var zero T
	v, err := g.cb.Execute(func() (interface{}, error) {
		res, err := fn()
		return res, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return zero, err
	}
	return v.(T), nil
}

func guardErr(g *Guarded, fn func() error) error {
	_, err := guard(g, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (g *Guarded) IndexPost(ctx context.Context, doc PostDocument) error {
	return guardErr(g, func() error { return g.next.IndexPost(ctx, doc) })
}

func (g *Guarded) UpdatePost(ctx context.Context, doc PostDocument) error {
	return guardErr(g, func() error { return g.next.UpdatePost(ctx, doc) })
}

func (g *Guarded) DeletePost(ctx context.Context, id uint) error {
	return guardErr(g, func() error { return g.next.DeletePost(ctx, id) })
}

func (g *Guarded) IndexUser(ctx context.Context, doc UserDocument) error {
	return guardErr(g, func() error { return g.next.IndexUser(ctx, doc) })
}

func (g *Guarded) UpdateUser(ctx context.Context, doc UserDocument) error {
	return guardErr(g, func() error { return g.next.UpdateUser(ctx, doc) })
}

func (g *Guarded) DeleteUser(ctx context.Context, id uint) error {
	return guardErr(g, func() error { return g.next.DeleteUser(ctx, id) })
}

func (g *Guarded) IndexTag(ctx context.Context, doc TagDocument) error {
	return guardErr(g, func() error { return g.next.IndexTag(ctx, doc) })
}

func (g *Guarded) UpdateTag(ctx context.Context, doc TagDocument) error {
	return guardErr(g, func() error { return g.next.UpdateTag(ctx, doc) })
}

func (g *Guarded) DeleteTag(ctx context.Context, id uint) error {
	return guardErr(g, func() error { return g.next.DeleteTag(ctx, id) })
}

func (g *Guarded) DocumentIDs(ctx context.Context, kind Scope, afterID uint, limit int) ([]uint, error) {
	return guard(g, func() ([]uint, error) { return g.next.DocumentIDs(ctx, kind, afterID, limit) })
}

func (g *Guarded) SearchPosts(ctx context.Context, query string, limit int) ([]PostDocument, error) {
	return guard(g, func() ([]PostDocument, error) { return g.next.SearchPosts(ctx, query, limit) })
}

func (g *Guarded) SearchPostsByTag(ctx context.Context, tag string, limit int) ([]PostDocument, error) {
	return guard(g, func() ([]PostDocument, error) { return g.next.SearchPostsByTag(ctx, tag, limit) })
}

func (g *Guarded) SearchUsers(ctx context.Context, query string, limit int) ([]UserDocument, error) {
	return guard(g, func() ([]UserDocument, error) { return g.next.SearchUsers(ctx, query, limit) })
}

func (g *Guarded) SuggestUsers(ctx context.Context, prefix string, limit int) ([]UserDocument, error) {
	return guard(g, func() ([]UserDocument, error) { return g.next.SuggestUsers(ctx, prefix, limit) })
}

func (g *Guarded) SearchTags(ctx context.Context, prefix string, limit int) ([]TagDocument, error) {
	return guard(g, func() ([]TagDocument, error) { return g.next.SearchTags(ctx, prefix, limit) })
}
