// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package buffer implements the per-type FIFO with backpressure that sits
// between the consumer poll service and the consumer pipeline.
package buffer

import (
	"context"
	"sync"

	"github.com/kflowdev/kflow/kflowerr"
)

// OverflowPolicy selects what a PerTypeBuffer does when Enqueue is called
// on a full buffer.
type OverflowPolicy int

const (
	// ApplyBackpressure reports full via TryEnqueue so the poll service
	// can pause the relevant partition(s) until the buffer drains.
	ApplyBackpressure OverflowPolicy = iota
	// DropOldest discards the head element to make room.
	DropOldest
	// DropNewest discards the arriving element.
	DropNewest
)

// Default watermark knobs.
const (
	DefaultHighWatermark = 0.8
	DefaultLowWatermark  = 0.5
)

// PerTypeBuffer is a bounded FIFO of T with edge-triggered high/low
// watermark signals consumed by the poll service's pause/resume logic.
type PerTypeBuffer[T any] struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	notFull  sync.Cond
	items    []T
	capacity int
	policy   OverflowPolicy
	high     float64
	low      float64

	// pausedSignalled tracks whether the last crossing already signalled,
	// so signals fire only on a transition, never on every call while
	// still above/below the watermark.
	pausedSignalled bool

	onDropNewest func()
}

// Option configures a PerTypeBuffer.
type Option[T any] func(*PerTypeBuffer[T])

// WithPolicy sets the overflow policy. Default is ApplyBackpressure.
func WithPolicy[T any](p OverflowPolicy) Option[T] {
	return func(b *PerTypeBuffer[T]) { b.policy = p }
}

// WithWatermarks overrides the default 0.8/0.5 high/low watermarks.
func WithWatermarks[T any](high, low float64) Option[T] {
	return func(b *PerTypeBuffer[T]) { b.high, b.low = high, low }
}

// WithDropNewestHook registers a callback invoked whenever DropNewest
// discards an arriving element, for observability.
func WithDropNewestHook[T any](f func()) Option[T] {
	return func(b *PerTypeBuffer[T]) { b.onDropNewest = f }
}

// New builds a PerTypeBuffer with the given capacity (default 1000 if 0).
func New[T any](capacity int, opts ...Option[T]) (*PerTypeBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1000
	}
	b := &PerTypeBuffer[T]{
		capacity: capacity,
		policy:   ApplyBackpressure,
		high:     DefaultHighWatermark,
		low:      DefaultLowWatermark,
	}
	b.notEmpty.L = &b.mu
	b.notFull.L = &b.mu
	for _, opt := range opts {
		opt(b)
	}
	if b.low >= b.high {
		return nil, kflowerr.NewConfiguration("buffer.PerTypeBuffer", "low watermark must be strictly below high watermark")
	}
	return b, nil
}

// TryEnqueue attempts to add v. It returns false only under
// ApplyBackpressure when the buffer is at capacity, signalling the caller
// to pause the source partition and retry later. Under DropOldest/DropNewest
// it always succeeds.
func (b *PerTypeBuffer[T]) TryEnqueue(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.capacity {
		switch b.policy {
		case DropOldest:
			b.items = append(b.items[1:], v)
			b.notEmpty.Broadcast()
			return true
		case DropNewest:
			if b.onDropNewest != nil {
				b.onDropNewest()
			}
			return true
		default:
			return false
		}
	}

	b.items = append(b.items, v)
	b.notEmpty.Broadcast()
	return true
}

// Dequeue removes and returns the head element. ok is false if the buffer
// is empty.
func (b *PerTypeBuffer[T]) Dequeue() (v T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return v, false
	}
	v = b.items[0]
	b.items = b.items[1:]
	b.notFull.Broadcast()
	return v, true
}

// DequeueBlocking removes and returns the head element, waiting until one
// is available or ctx is cancelled. It backs the consumer pipeline's pull
// from its per-type buffer.
func (b *PerTypeBuffer[T]) DequeueBlocking(ctx context.Context) (T, error) {
	var zero T

	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.notEmpty.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.items) == 0 {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		b.notEmpty.Wait()
	}

	v := b.items[0]
	b.items = b.items[1:]
	b.notFull.Broadcast()
	return v, nil
}

// EnqueueBlocking adds v, waiting for room if the buffer is at capacity
// under ApplyBackpressure. Under DropOldest/DropNewest it behaves exactly
// like TryEnqueue and never blocks. It backs the poll loop's retry path
// once a consumer has drained room for the record that TryEnqueue rejected.
func (b *PerTypeBuffer[T]) EnqueueBlocking(ctx context.Context, v T) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.notFull.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) >= b.capacity && b.policy == ApplyBackpressure {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.notFull.Wait()
	}

	if len(b.items) >= b.capacity {
		switch b.policy {
		case DropOldest:
			b.items = append(b.items[1:], v)
			b.notEmpty.Broadcast()
			return nil
		case DropNewest:
			if b.onDropNewest != nil {
				b.onDropNewest()
			}
			return nil
		}
	}

	b.items = append(b.items, v)
	b.notEmpty.Broadcast()
	return nil
}

// Len returns the current number of buffered elements.
func (b *PerTypeBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// AboveHighWatermark reports true exactly once when occupancy crosses the
// high watermark from below, and stays false on subsequent calls until a
// low-watermark crossing re-arms it.
func (b *PerTypeBuffer[T]) AboveHighWatermark() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	occupancy := float64(len(b.items)) / float64(b.capacity)
	if !b.pausedSignalled && occupancy >= b.high {
		b.pausedSignalled = true
		return true
	}
	return false
}

// BelowLowWatermark reports true exactly once when occupancy crosses the
// low watermark from above, after a prior high-watermark signal.
func (b *PerTypeBuffer[T]) BelowLowWatermark() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	occupancy := float64(len(b.items)) / float64(b.capacity)
	if b.pausedSignalled && occupancy <= b.low {
		b.pausedSignalled = false
		return true
	}
	return false
}
