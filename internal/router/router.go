// Package router dispatches inbound chat events to the conversation engine.
//
// Every event passes, in order: per-user serialization, the engine's
// accepted-pattern filter, the access guard, and finally the engine.
// Events no pattern accepts are dropped without touching the guard, so
// ordinary chatter never triggers membership lookups or rejections.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"tradelink/internal/conversation"
	"tradelink/internal/metrics"
	"tradelink/internal/model"
)

// Engine is the conversation side of the router.
type Engine interface {
	Accepts(ev conversation.Event) bool
	Handle(ctx context.Context, ev conversation.Event) error
}

// Guard decides whether a user may proceed.
type Guard interface {
	Check(ctx context.Context, userID int64) error
}

// Config holds router dependencies.
type Config struct {
	Engine    Engine
	Guard     Guard
	Messenger conversation.Messenger
	Metrics   metrics.Recorder
	Logger    *slog.Logger
}

// Router serializes events per user and runs different users concurrently.
type Router struct {
	engine    Engine
	guard     Guard
	messenger conversation.Messenger
	metrics   metrics.Recorder
	logger    *slog.Logger
	locks     userLocks
	pending   pendingEvents
}

// New creates a router.
func New(cfg Config) (*Router, error) {
	if cfg.Engine == nil || cfg.Guard == nil || cfg.Messenger == nil {
		return nil, fmt.Errorf("engine, guard and messenger are required")
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Nop()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		engine:    cfg.Engine,
		guard:     cfg.Guard,
		messenger: cfg.Messenger,
		metrics:   rec,
		logger:    logger,
		locks:     userLocks{m: make(map[int64]*userLock)},
		pending:   pendingEvents{queues: make(map[int64][]conversation.Event)},
	}, nil
}

// Dispatch handles one event and blocks until the engine is done with it.
func (r *Router) Dispatch(ctx context.Context, ev conversation.Event) error {
	unlock := r.locks.lock(ev.UserID)
	defer unlock()

	if !r.engine.Accepts(ev) {
		return nil
	}

	logger := r.logger.With(slog.Int64("user_id", ev.UserID), slog.String("kind", ev.Kind.String()))

	if err := r.guard.Check(ctx, ev.UserID); err != nil {
		r.metrics.IncAccessDenied()
		logger.Info("event rejected", slog.String("code", model.CodeOf(err)))
		if _, sendErr := r.messenger.Send(ctx, ev.ChatID, model.UserMessage(err), nil); sendErr != nil {
			return fmt.Errorf("sending rejection: %w", sendErr)
		}
		return nil
	}

	if err := r.engine.Handle(ctx, ev); err != nil {
		logger.Error("event handling failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// userLocks hands out one mutex per user, freed when no event holds it.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID int64) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
