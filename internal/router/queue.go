package router

import (
	"context"
	"log/slog"
	"sync"

	"tradelink/internal/conversation"
)

// pendingEvents holds the events of each user that arrived while an earlier
// one was still being dispatched. A user has a drain goroutine exactly while
// their key is present.
type pendingEvents struct {
	mu     sync.Mutex
	queues map[int64][]conversation.Event
	wg     sync.WaitGroup
}

// Submit hands ev off without blocking. Events of one user are dispatched
// one at a time in the order Submit saw them; different users run
// concurrently. Failures are logged.
func (r *Router) Submit(ctx context.Context, ev conversation.Event) {
	p := &r.pending

	p.mu.Lock()
	q, draining := p.queues[ev.UserID]
	p.queues[ev.UserID] = append(q, ev)
	p.mu.Unlock()
	if draining {
		return
	}

	p.wg.Add(1)
	go r.drain(ctx, ev.UserID)
}

// Wait blocks until every submitted event was dispatched.
func (r *Router) Wait() {
	r.pending.wg.Wait()
}

func (r *Router) drain(ctx context.Context, userID int64) {
	p := &r.pending
	defer p.wg.Done()

	for {
		p.mu.Lock()
		q := p.queues[userID]
		if len(q) == 0 {
			delete(p.queues, userID)
			p.mu.Unlock()
			return
		}
		ev := q[0]
		p.queues[userID] = q[1:]
		p.mu.Unlock()

		if err := r.Dispatch(ctx, ev); err != nil {
			r.logger.Error("dispatch failed",
				slog.Int64("user_id", ev.UserID),
				slog.String("kind", ev.Kind.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
