package action

import (
	"sync"

	"github.com/google/uuid"
)

// Outbound is a message waiting to be delivered.
type Outbound struct {
	Target  uuid.UUID // uuid.Nil broadcasts
	Content string
}

// IsBroadcast reports whether the message goes to every connection.
func (o Outbound) IsBroadcast() bool {
	return o.Target == uuid.Nil
}

// Queue is a FIFO of outbound messages. Any goroutine may Push; one consumer
// calls Drain.
type Queue struct {
	mu    sync.Mutex
	items []Outbound
}

// Push appends m to the queue.
func (q *Queue) Push(m Outbound) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
}

// Drain removes and returns every queued message in arrival order.
func (q *Queue) Drain() []Outbound {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the current backlog.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
