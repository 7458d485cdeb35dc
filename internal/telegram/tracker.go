package telegram

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errSendFailed = errors.New("message send failed")

// staleAfter bounds how long an unclaimed result or an abandoned wait is remembered.
const staleAfter = 10 * time.Minute

type sendResult struct {
	id  int64
	err error
	at  time.Time
}

// sendTracker maps the temporary id TDLib returns for a sent message to
// the permanent id carried by the later send update. Updates may arrive
// before the sender starts waiting, so unclaimed results are kept. Results
// for waits that already gave up are dropped.
type sendTracker struct {
	mu        sync.Mutex
	waiters   map[int64]chan sendResult
	early     map[int64]sendResult
	abandoned map[int64]time.Time
	now       func() time.Time
}

func newSendTracker() *sendTracker {
	return &sendTracker{
		waiters:   make(map[int64]chan sendResult),
		early:     make(map[int64]sendResult),
		abandoned: make(map[int64]time.Time),
		now:       time.Now,
	}
}

// wait blocks until tempID is resolved or ctx ends.
func (t *sendTracker) wait(ctx context.Context, tempID int64) (int64, error) {
	t.mu.Lock()
	if r, ok := t.early[tempID]; ok {
		delete(t.early, tempID)
		t.mu.Unlock()
		return r.id, r.err
	}
	ch := make(chan sendResult, 1)
	t.waiters[tempID] = ch
	t.mu.Unlock()

	select {
	case r := <-ch:
		return r.id, r.err
	case <-ctx.Done():
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.waiters, tempID)
		// resolve may have won the race after ctx ended
		select {
		case r := <-ch:
			return r.id, r.err
		default:
		}
		t.abandoned[tempID] = t.now()
		return 0, ctx.Err()
	}
}

// resolve delivers the outcome of the send of tempID.
func (t *sendTracker) resolve(tempID, id int64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweep(now)

	if ch, ok := t.waiters[tempID]; ok {
		delete(t.waiters, tempID)
		ch <- sendResult{id: id, err: err, at: now}
		return
	}
	if _, ok := t.abandoned[tempID]; ok {
		delete(t.abandoned, tempID)
		return
	}
	t.early[tempID] = sendResult{id: id, err: err, at: now}
}

// sweep forgets entries older than staleAfter. Callers hold t.mu.
func (t *sendTracker) sweep(now time.Time) {
	for tempID, r := range t.early {
		if now.Sub(r.at) > staleAfter {
			delete(t.early, tempID)
		}
	}
	for tempID, at := range t.abandoned {
		if now.Sub(at) > staleAfter {
			delete(t.abandoned, tempID)
		}
	}
}

// pending reports how many results and abandoned waits are remembered.
func (t *sendTracker) pending() (early, abandoned int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.early), len(t.abandoned)
}
