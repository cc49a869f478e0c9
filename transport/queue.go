package transport

import "sync/atomic"

// queue is a bounded FIFO with slot reservation. A publisher reserves a slot
// before handing a message to Watermill, so the pump's hand-off never waits
// and a full queue is reported to the publisher instead of stalling it.
type queue[T any] struct {
	ch       chan T
	reserved atomic.Int64
}

func newQueue[T any](size int) *queue[T] {
	return &queue[T]{ch: make(chan T, size)}
}

// reserve claims a slot. It reports false when every slot is taken by a
// queued or in-flight value.
func (q *queue[T]) reserve() bool {
	for {
		n := q.reserved.Load()
		if n >= int64(cap(q.ch)) {
			return false
		}

		if q.reserved.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release frees a slot claimed by reserve.
func (q *queue[T]) release() { q.reserved.Add(-1) }
