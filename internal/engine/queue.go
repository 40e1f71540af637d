package engine

import "sync"

// signalQueue is a FIFO deque of pending signals. Protective CLOSE signals go
// in at the head so exits pre-empt ordinary flow; a channel cannot express
// that, hence the slice.
type signalQueue struct {
	mu    sync.Mutex
	items []*Signal
}

func newSignalQueue() *signalQueue {
	return &signalQueue{}
}

// Push appends to the tail.
func (q *signalQueue) Push(s *Signal) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, s)
}

// PushFront inserts at the head, ahead of everything queued so far.
func (q *signalQueue) PushFront(s *Signal) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*Signal{s}, q.items...)
}

// DrainN removes and returns up to n signals from the head.
func (q *signalQueue) DrainN(n int) []*Signal {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := q.items[:n]
	q.items = append([]*Signal(nil), q.items[n:]...)
	return batch
}

func (q *signalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
