package connectivity

import "sync"

// queuedPublish is one outbound message parked while the broker is
// unreachable, together with how many delivery attempts it has burned.
type queuedPublish struct {
	Topic    string
	Payload  []byte
	Retained bool
	Attempts int
}

// offlineQueue is a bounded FIFO. When full, pushing evicts the oldest
// entry and reports it so the caller can log the drop.
type offlineQueue struct {
	mu    sync.Mutex
	items []queuedPublish
	cap   int
}

func newOfflineQueue(capacity int) *offlineQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &offlineQueue{cap: capacity}
}

// Push appends an item. The returned entry is the evicted oldest message
// when the queue was full, and evicted is true in that case.
func (q *offlineQueue) Push(item queuedPublish) (evicted queuedPublish, wasEvicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		evicted = q.items[0]
		q.items = q.items[1:]
		wasEvicted = true
	}
	q.items = append(q.items, item)
	return evicted, wasEvicted
}

// Pop removes and returns the oldest item.
func (q *offlineQueue) Pop() (queuedPublish, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return queuedPublish{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *offlineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
