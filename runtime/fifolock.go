package runtime

import (
	"context"
	"sync"
)

// FIFOLock is a strict arrival-order queueing lock. Acquire enqueues the
// caller behind every earlier waiter and Release wakes exactly the head of
// the queue, so holders proceed in the order they called Acquire. This is a
// stronger guarantee than sync.Mutex, which promises exclusion but not
// queueing fairness under contention.
type FIFOLock struct {
	mu     sync.Mutex
	locked bool
	queue  []chan struct{}
}

// NewFIFOLock creates a new FIFO lock.
func NewFIFOLock() *FIFOLock {
	return &FIFOLock{}
}

// Acquire blocks until the lock is held or ctx is done. On cancellation the
// waiter is removed from the queue without disturbing the order of the
// others.
func (l *FIFOLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.locked && len(l.queue) == 0 {
		l.locked = true
		l.mu.Unlock()
		return nil
	}

	ticket := make(chan struct{}, 1)
	l.queue = append(l.queue, ticket)
	l.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, t := range l.queue {
			if t == ticket {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		// The ticket was already dequeued: Release handed us the lock
		// concurrently with cancellation. Pass it on so no waiter starves.
		l.releaseLocked()
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Release passes the lock to the oldest waiter, or unlocks when the queue is
// empty. Calling Release without holding the lock is a programming error.
func (l *FIFOLock) Release() {
	l.mu.Lock()
	l.releaseLocked()
	l.mu.Unlock()
}

func (l *FIFOLock) releaseLocked() {
	if len(l.queue) > 0 {
		head := l.queue[0]
		l.queue = l.queue[1:]
		head <- struct{}{}
		return
	}
	l.locked = false
}
