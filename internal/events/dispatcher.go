package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"shutter/internal/observability"
)

// Listener reacts to events after commit.
type Listener interface {
	Name() string
	// Priority orders listeners; lower runs first.
	Priority() int
	Handles(eventType string) bool
	Handle(ctx context.Context, event Event) error
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Dispatcher runs listeners synchronously, in priority order, inside the
// request that caused the mutation.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewDispatcher(listeners ...Listener) *Dispatcher {
	d := &Dispatcher{}
	for _, l := range listeners {
		d.Register(l)
	}
	return d
}

func (d *Dispatcher) Register(l Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
	sort.SliceStable(d.listeners, func(i, j int) bool {
		return d.listeners[i].Priority() < d.listeners[j].Priority()
	})
}

// Emit never fails. Each listener error or panic is logged at WARN and
// counted; remaining listeners still run.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || event == nil {
		return
	}
	d.mu.RLock()
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	eventType := event.EventType()
	for _, l := range listeners {
		if !l.Handles(eventType) {
			continue
		}
		start := time.Now()
		if err := safeHandle(ctx, l, event); err != nil {
			observability.SideEffectFailures.WithLabelValues(l.Name(), eventType).Inc()
			observability.Logger.WarnContext(ctx, "side effect failed",
				slog.String("listener", l.Name()),
				slog.String("event", eventType),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func safeHandle(ctx context.Context, l Listener, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.Handle(ctx, event)
}

// handles builds a Handles func over a fixed set of event types.
func handles(types ...string) func(string) bool {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(t string) bool {
		_, ok := set[t]
		return ok
	}
}
