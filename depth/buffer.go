package depth

import (
	"sync"
	"sync/atomic"
)

// TripleBuffer is a single-producer single-consumer exchange of three slots.
// The producer always writes the slot that is neither ready nor locked by the
// consumer, so neither side ever blocks the other. Lock reports true exactly
// once per published value.
type TripleBuffer[T any] struct {
	slots [3]T

	// state holds the ready slot index in the low two bits and a freshness
	// flag in bit 2. Only Publish and Lock touch it, both via atomic swaps.
	state atomic.Uint32

	writeIdx uint32 // producer-private
	lockIdx  uint32 // consumer-private
}

const freshBit = 4

// NewTripleBuffer builds a buffer whose three slots are filled by alloc.
func NewTripleBuffer[T any](alloc func() T) *TripleBuffer[T] {
	b := &TripleBuffer[T]{writeIdx: 0, lockIdx: 2}
	for i := range b.slots {
		b.slots[i] = alloc()
	}
	b.state.Store(1) // slot 1 starts ready, not fresh
	return b
}

// Writable returns the producer's current slot. Producer-side only.
func (b *TripleBuffer[T]) Writable() T {
	return b.slots[b.writeIdx]
}

// Publish marks the write slot ready and takes the previously ready slot as
// the next write target. Producer-side only.
func (b *TripleBuffer[T]) Publish() {
	old := b.state.Swap(b.writeIdx | freshBit)
	b.writeIdx = old &^ freshBit
}

// Lock atomically claims the most recent published slot. It returns the
// locked value and whether it is new since the previous successful Lock.
// Consumer-side only.
func (b *TripleBuffer[T]) Lock() (T, bool) {
	if b.state.Load()&freshBit == 0 {
		return b.slots[b.lockIdx], false
	}
	old := b.state.Swap(b.lockIdx)
	b.lockIdx = old &^ freshBit
	return b.slots[b.lockIdx], true
}

// Locked returns the value claimed by the last Lock. Consumer-side only.
func (b *TripleBuffer[T]) Locked() T {
	return b.slots[b.lockIdx]
}

// FrameMailbox is a condvar-guarded single-slot input buffer feeding a
// worker. Submitting overwrites any pending frame (last-writer-wins) and
// wakes the worker; frames are copied in and out under the lock because
// producers reuse their frame buffers.
type FrameMailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	frame   *RawFrame
	pending bool
	closed  bool
}

// NewFrameMailbox creates an empty open mailbox for w x h frames.
func NewFrameMailbox(w, h int) *FrameMailbox {
	m := &FrameMailbox{frame: NewRawFrame(w, h)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Submit copies f into the slot, replacing any pending frame, and wakes the
// worker. Never blocks beyond the copy.
func (m *FrameMailbox) Submit(f *RawFrame) {
	m.mu.Lock()
	m.frame.CopyFrom(f)
	m.pending = true
	m.mu.Unlock()
	m.cond.Signal()
}

// Next blocks until a frame is pending or the mailbox is closed, then copies
// the frame into dst. Returns false once closed and drained.
func (m *FrameMailbox) Next(dst *RawFrame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.pending && !m.closed {
		m.cond.Wait()
	}
	if !m.pending {
		return false
	}
	dst.CopyFrom(m.frame)
	m.pending = false
	return true
}

// Close wakes the worker and makes all future Next calls return false.
func (m *FrameMailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}
