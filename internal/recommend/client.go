// Package recommend talks to the external recommendation service used by the
// explore feed. Its answers are advisory: every failure yields an empty list.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shutter/internal/observability"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("shutter/recommend")

// Item is one ranked recommendation. Only the post id is trusted; the post
// itself is reloaded from the primary store by the caller.
type Item struct {
	ID    uint    `json:"id"`
	Score float64 `json:"score"`
}

// Recommender returns ranked post ids for a user.
type Recommender interface {
	Recommendations(ctx context.Context, userID uint) []uint
}

// Client calls GET <base>/recommend?userId=<id>.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewClient returns nil when baseURL is empty, which callers treat as
// "no recommender configured".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "recommend",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				observability.Logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

// Recommendations never fails; errors are logged and produce an empty slice.
func (c *Client) Recommendations(ctx context.Context, userID uint) []uint {
	if c == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "Recommend.Get",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))))

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.fetch(ctx, userID)
	})
	observability.EndSpan(span, err)
	if err != nil {
		observability.RecommendRequests.WithLabelValues("error").Inc()
		observability.Logger.WarnContext(ctx, "recommendation request failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
		return nil
	}

	items := res.([]Item)
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		if it.ID != 0 {
			ids = append(ids, it.ID)
		}
	}
	if len(ids) == 0 {
		observability.RecommendRequests.WithLabelValues("empty").Inc()
	} else {
		observability.RecommendRequests.WithLabelValues("ok").Inc()
	}
	return ids
}

func (c *Client) fetch(ctx context.Context, userID uint) ([]Item, error) {
	q := url.Values{"userId": []string{strconv.FormatUint(uint64(userID), 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/recommend?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recommend: unexpected status %d", resp.StatusCode)
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("recommend: decode response: %w", err)
	}
	return items, nil
}
