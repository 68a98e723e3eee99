package runner

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of job ids. Push never blocks and never
// deduplicates; a repeated id is dropped later by the claim check.
type queue struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *queue) tryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return id, true
}

// pop blocks until an id is available or ctx ends.
func (q *queue) pop(ctx context.Context) (string, error) {
	for {
		if id, ok := q.tryPop(); ok {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
