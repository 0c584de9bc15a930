package channel

import "sync"

// Unbuffered is an unbuffered channel implementation
type Unbuffered[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	closed bool
}

// NewUnbuffered creates a new unbuffered channel
func NewUnbuffered[T any]() *Unbuffered[T] {
	return &Unbuffered[T]{ch: make(chan T)}
}

// Send sends a value to the channel (blocks until received)
func (u *Unbuffered[T]) Send(v T) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return
	}
	u.ch <- v
}

// TrySend sends v only if a receiver is waiting.
func (u *Unbuffered[T]) TrySend(v T) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return false
	}
	select {
	case u.ch <- v:
		return true
	default:
		return false
	}
}

// Receive returns the receive-only channel
func (u *Unbuffered[T]) Receive() <-chan T {
	return u.ch
}

// Len always returns 0 for unbuffered channels
func (u *Unbuffered[T]) Len() int {
	return 0
}

// Close closes the channel
func (u *Unbuffered[T]) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.closed {
		u.closed = true
		close(u.ch)
	}
}
