package eventbus

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBufferFull is returned when the in-memory fallback buffer has
// reached its capacity and cannot accept another event.
var ErrBufferFull = errors.New("eventbus: buffer full")

type bufferedEvent struct {
	eventID    uuid.UUID
	topic      string
	eventType  string
	payload    any
	retryCount int
	bufferedAt time.Time
}

// buffer is the mutex-guarded bounded fallback store used when every
// broker publish attempt for an event has been exhausted. Mirrors the
// _buffer/_buffer_lock shape of the original publisher, translated from
// an asyncio.Lock to a sync.Mutex.
type buffer struct {
	mu       sync.Mutex
	items    []*bufferedEvent
	capacity int
}

func newBuffer(capacity int) *buffer {
	return &buffer{capacity: capacity}
}

func (b *buffer) enqueue(ev *bufferedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.capacity {
		return ErrBufferFull
	}
	b.items = append(b.items, ev)
	return nil
}

func (b *buffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *buffer) clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.items)
	b.items = nil
	return n
}

// drain removes every buffered event under lock and hands them to fn one
// at a time; events for which fn returns an error are kept (with an
// incremented retry count) for the next flush.
func (b *buffer) drain(fn func(*bufferedEvent) error) FlushResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var remaining []*bufferedEvent
	var result FlushResult

	for _, ev := range b.items {
		if err := fn(ev); err != nil {
			ev.retryCount++
			remaining = append(remaining, ev)
			result.Failed++
			continue
		}
		result.Published++
	}

	b.items = remaining
	return result
}

// FlushResult summarizes the outcome of a buffer flush.
type FlushResult struct {
	Published int
	Failed    int
}
