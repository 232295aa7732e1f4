// Package queue provides the bounded handoff between a capture producer and
// an engine consumer. One goroutine may produce and one may consume at the
// same time; multiple concurrent consumers need external coordination.
package queue

import (
	"sync"

	"github.com/pkg/errors"
)

const defaultCapacity = 64

// ErrCanceled is returned from every blocking call after Cancel, until Reset.
var ErrCanceled = errors.New("queue canceled")

// Slot is a caller-visible memory region for one message. The producer owns
// it from AcquireSlot until Publish; the consumer owns it from Next until
// Release.
type Slot struct {
	buf []byte
}

// Bytes returns the slot's memory region. Its length is exactly the size the
// slot was acquired with.
func (s *Slot) Bytes() []byte {
	return s.buf
}

// Queue is a bounded single-producer single-consumer message queue with
// reusable slot buffers.
type Queue struct {
	mu       sync.Mutex
	items    chan *Slot
	canceled chan struct{}
	pool     sync.Pool
}

type Opts struct {
	// Capacity is the number of published messages the queue holds before
	// the producer blocks.
	Capacity int
}

func New(opts Opts) *Queue {
	if opts.Capacity == 0 {
		opts.Capacity = defaultCapacity
	}
	return &Queue{
		items:    make(chan *Slot, opts.Capacity),
		canceled: make(chan struct{}),
		pool: sync.Pool{
			New: func() interface{} { return &Slot{} },
		},
	}
}

// AcquireSlot hands out a slot of exactly size bytes for the producer to fill.
// The producer may write into Bytes directly; no copy happens on Publish.
func (q *Queue) AcquireSlot(size int) (*Slot, error) {
	if size < 0 {
		return nil, errors.Errorf("invalid slot size %d", size)
	}
	select {
	case <-q.done():
		return nil, ErrCanceled
	default:
	}
	s := q.pool.Get().(*Slot)
	if cap(s.buf) < size {
		s.buf = make([]byte, size)
	}
	s.buf = s.buf[:size]
	return s, nil
}

// Publish hands a filled slot to the consumer side. Blocks while the queue is
// at capacity.
func (q *Queue) Publish(s *Slot) error {
	select {
	case q.items <- s:
		return nil
	case <-q.done():
		return ErrCanceled
	}
}

// Next blocks until a published slot is available. The consumer must call
// Release once it is done with the slot.
func (q *Queue) Next() (*Slot, error) {
	select {
	case <-q.done():
		return nil, ErrCanceled
	default:
	}
	select {
	case s := <-q.items:
		return s, nil
	case <-q.done():
		return nil, ErrCanceled
	}
}

// Release returns a slot's buffer for reuse. The slot contents are invalid
// afterwards.
func (q *Queue) Release(s *Slot) {
	q.pool.Put(s)
}

// Cancel atomically unblocks all current and future blocking calls. The queue
// stays canceled until Reset.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.canceled:
		// already canceled
	default:
		close(q.canceled)
	}
}

// Reset re-arms a canceled queue and drops any messages left in it.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.canceled:
		q.canceled = make(chan struct{})
	default:
	}
	for {
		select {
		case s := <-q.items:
			q.pool.Put(s)
		default:
			return
		}
	}
}

func (q *Queue) done() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.canceled
}
