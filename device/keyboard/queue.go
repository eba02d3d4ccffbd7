// Package keyboard hands PS/2 scancodes from the keyboard interrupt handler
// to the kernel idle loop and decodes them into ASCII characters.
package keyboard

import "sync/atomic"

// queueSize defines the capacity of a scancode Queue. The size must be a
// power of 2.
const queueSize = 128

// Queue is a fixed-size scancode ring with a single producer (the keyboard
// interrupt handler) and a single consumer (the idle loop). Neither side
// blocks or allocates; scancodes pushed while the queue is full are counted
// and dropped.
type Queue struct {
	buffer [queueSize]uint8

	// rIndex is only written by the consumer and wIndex only by the
	// producer. Both increase monotonically and wrap around.
	rIndex  atomic.Uint32
	wIndex  atomic.Uint32
	dropped atomic.Uint64
}

// Push appends code to the queue. It returns false if the queue is full.
func (q *Queue) Push(code uint8) bool {
	w := q.wIndex.Load()
	if w-q.rIndex.Load() == queueSize {
		q.dropped.Add(1)
		return false
	}

	q.buffer[w&(queueSize-1)] = code
	q.wIndex.Store(w + 1)
	return true
}

// Pop removes the oldest scancode from the queue. The second return value is
// false if the queue is empty.
func (q *Queue) Pop() (uint8, bool) {
	r := q.rIndex.Load()
	if r == q.wIndex.Load() {
		return 0, false
	}

	code := q.buffer[r&(queueSize-1)]
	q.rIndex.Store(r + 1)
	return code, true
}

// Len returns the number of queued scancodes.
func (q *Queue) Len() int {
	return int(q.wIndex.Load() - q.rIndex.Load())
}

// Dropped returns the number of scancodes that were discarded because the
// queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
