package sessioncache

import (
	"context"
	"sync"
	"time"

	"github.com/memtrail/memtrail/pkg/conversation"
	"github.com/memtrail/memtrail/pkg/logger"
	"github.com/memtrail/memtrail/pkg/sessionstore"
)

// writeOp is one turn awaiting durable write.
type writeOp struct {
	turn conversation.Turn
}

// sessionQueue holds a session's pending writes in append order. At most one
// worker drains a queue at a time, which keeps the per-session write order
// equal to the append order.
type sessionQueue struct {
	id string

	mu       sync.Mutex
	ops      []writeOp
	draining bool
}

// flusher drains per-session write queues into the durable store with a
// fixed worker pool. Failed writes are retried with doubling backoff; a
// write that exhausts its retry budget is dropped with a log line and a
// metric, never a crash.
type flusher struct {
	store       sessionstore.Store
	retryBudget int
	backoff     time.Duration
	log         logger.Logger
	metrics     Metrics

	mu     sync.Mutex
	queues map[string]*sessionQueue

	ready    chan *sessionQueue
	stopCh   chan struct{}
	wg       sync.WaitGroup
	inflight sync.WaitGroup
}

func newFlusher(store sessionstore.Store, workers, retryBudget int, backoff time.Duration, log logger.Logger, m Metrics) *flusher {
	if workers <= 0 {
		workers = 1
	}
	f := &flusher{
		store:       store,
		retryBudget: retryBudget,
		backoff:     backoff,
		log:         log,
		metrics:     m,
		queues:      make(map[string]*sessionQueue),
		ready:       make(chan *sessionQueue, 1024),
		stopCh:      make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
	return f
}

// enqueue schedules a turn for durable write. The queue mutex is taken
// before the map mutex is released so a queue pruned by drain can never
// receive a late append; the lookup either finds a live queue or creates a
// fresh one.
func (f *flusher) enqueue(sessionID string, turn conversation.Turn) {
	f.mu.Lock()
	q, ok := f.queues[sessionID]
	if !ok {
		q = &sessionQueue{id: sessionID}
		f.queues[sessionID] = q
	}
	q.mu.Lock()
	f.mu.Unlock()

	f.inflight.Add(1)
	q.ops = append(q.ops, writeOp{turn: turn})
	schedule := !q.draining
	if schedule {
		q.draining = true
	}
	q.mu.Unlock()

	if schedule {
		f.ready <- q
	}
}

// pending returns a snapshot of a session's unflushed turns.
func (f *flusher) pending(sessionID string) []conversation.Turn {
	f.mu.Lock()
	q, ok := f.queues[sessionID]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	q.mu.Lock()
	f.mu.Unlock()
	defer q.mu.Unlock()
	turns := make([]conversation.Turn, len(q.ops))
	for i, op := range q.ops {
		turns[i] = op.turn
	}
	return turns
}

func (f *flusher) worker() {
	defer f.wg.Done()
	for {
		select {
		case <-f.stopCh:
			return
		case q := <-f.ready:
			f.drain(q)
		}
	}
}

// drain writes a session's queue to the store until it runs empty, then
// releases the queue. The flush barrier is signalled for the final op only
// after the release, so a completed Flush implies quiet sessions hold no
// queue.
func (f *flusher) drain(q *sessionQueue) {
	for {
		q.mu.Lock()
		if len(q.ops) == 0 {
			q.draining = false
			q.mu.Unlock()
			f.release(q)
			return
		}
		op := q.ops[0]
		q.mu.Unlock()

		f.write(q.id, op)

		// Remove the op only after the write settled, so a concurrent
		// read-through still sees it as pending.
		q.mu.Lock()
		q.ops = q.ops[1:]
		empty := len(q.ops) == 0
		if empty {
			q.draining = false
		}
		q.mu.Unlock()
		if empty {
			f.release(q)
		}
		f.inflight.Done()
		if empty {
			return
		}

		select {
		case <-f.stopCh:
			return
		default:
		}
	}
}

// write attempts one durable append, retrying with doubling backoff.
func (f *flusher) write(sessionID string, op writeOp) {
	backoff := f.backoff
	for attempt := 0; ; attempt++ {
		err := f.store.Append(context.Background(), sessionID, op.turn)
		if err == nil {
			return
		}
		if attempt >= f.retryBudget {
			f.metrics.FlushDropped()
			f.log.Error("write-behind flush dropped after exhausting retries",
				"session_id", sessionID,
				"turn_id", op.turn.ID,
				"attempts", attempt+1,
				"error", err,
			)
			return
		}
		f.metrics.FlushRetry()
		f.log.Warn("write-behind flush failed, retrying",
			"session_id", sessionID,
			"attempt", attempt+1,
			"error", err,
		)
		select {
		case <-f.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// release removes a drained queue from the map so the queue set does not
// grow with every session ever seen. A queue that picked up new ops or a
// new drainer since it ran empty is left in place, and a stale release
// never removes a successor queue registered under the same session.
func (f *flusher) release(q *sessionQueue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q.mu.Lock()
	defer q.mu.Unlock()
	if f.queues[q.id] == q && len(q.ops) == 0 && !q.draining {
		delete(f.queues, q.id)
	}
}

// queueCount reports the number of live session queues.
func (f *flusher) queueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues)
}

// flushWait blocks until every queued write has settled or ctx expires.
func (f *flusher) flushWait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop shuts the worker pool down. Pending writes are not drained; call
// flushWait first for a clean shutdown.
func (f *flusher) stop() {
	close(f.stopCh)
	f.wg.Wait()
}
