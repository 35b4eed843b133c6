// Package queue provides a bounded in-memory buffer between the response
// dispatcher and the archive sinks.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueEmpty  = errors.New("queue is empty")
)

// DefaultSize is the capacity used when a non-positive size is requested.
const DefaultSize = 10000

// RingBuffer is a fixed-capacity FIFO of response records. Push never blocks;
// records that do not fit are dropped and counted.
type RingBuffer struct {
	buffer []*schema.ResponseRecord
	size   int
	head   int
	tail   int
	count  int
	closed bool

	mu     sync.Mutex
	ready  chan struct{}
	closeC chan struct{}

	pushed  uint64
	popped  uint64
	dropped uint64
}

// NewRingBuffer creates a buffer holding up to size records.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &RingBuffer{
		buffer: make([]*schema.ResponseRecord, size),
		size:   size,
		ready:  make(chan struct{}, 1),
		closeC: make(chan struct{}),
	}
}

// Push appends rec. It returns ErrQueueFull when the buffer is at capacity.
func (rb *RingBuffer) Push(rec *schema.ResponseRecord) error {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return ErrQueueClosed
	}
	if rb.count == rb.size {
		rb.mu.Unlock()
		atomic.AddUint64(&rb.dropped, 1)
		return ErrQueueFull
	}

	rb.buffer[rb.tail] = rec
	rb.tail = (rb.tail + 1) % rb.size
	rb.count++
	rb.mu.Unlock()

	atomic.AddUint64(&rb.pushed, 1)
	select {
	case rb.ready <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes the oldest record without waiting.
func (rb *RingBuffer) Pop() (*schema.ResponseRecord, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.popLocked()
}

func (rb *RingBuffer) popLocked() (*schema.ResponseRecord, error) {
	if rb.count == 0 {
		if rb.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}

	rec := rb.buffer[rb.head]
	rb.buffer[rb.head] = nil
	rb.head = (rb.head + 1) % rb.size
	rb.count--
	atomic.AddUint64(&rb.popped, 1)

	// Wake another waiter if records remain.
	if rb.count > 0 {
		select {
		case rb.ready <- struct{}{}:
		default:
		}
	}
	return rec, nil
}

// PopWithTimeout waits up to timeout for a record. It returns ErrQueueEmpty
// on timeout and ErrQueueClosed once the buffer is closed and drained.
func (rb *RingBuffer) PopWithTimeout(timeout time.Duration) (*schema.ResponseRecord, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		rec, err := rb.Pop()
		if !errors.Is(err, ErrQueueEmpty) {
			return rec, err
		}

		select {
		case <-rb.ready:
		case <-rb.closeC:
			// Drain whatever is left before reporting closed.
			return rb.Pop()
		case <-timer.C:
			return nil, ErrQueueEmpty
		}
	}
}

// Len returns the number of buffered records.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the capacity.
func (rb *RingBuffer) Cap() int {
	return rb.size
}

// Close stops accepting records. Buffered records can still be popped.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return
	}
	rb.closed = true
	close(rb.closeC)
}

// Metrics returns queue statistics.
func (rb *RingBuffer) Metrics() Metrics {
	return Metrics{
		Pushed:   atomic.LoadUint64(&rb.pushed),
		Popped:   atomic.LoadUint64(&rb.popped),
		Dropped:  atomic.LoadUint64(&rb.dropped),
		Depth:    rb.Len(),
		Capacity: rb.size,
	}
}

// Metrics holds queue statistics.
type Metrics struct {
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Dropped  uint64 `json:"dropped"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}
