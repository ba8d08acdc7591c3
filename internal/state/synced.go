package state

import (
	"context"
	"sync"
)

// Synced bundles a value with the lock and condition variable guarding it.
// Waiters block until a predicate over the value holds.
type Synced[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value T
}

// NewSynced creates a synchronized value
func NewSynced[T any](initial T) *Synced[T] {
	s := &Synced[T]{value: initial}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Get returns the current value
func (s *Synced[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set stores v and wakes every waiter
func (s *Synced[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Update replaces the value with fn(value) and wakes every waiter
func (s *Synced[T]) Update(fn func(T) T) {
	s.mu.Lock()
	s.value = fn(s.value)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Store stores v without waking waiters
func (s *Synced[T]) Store(v T) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

// Notify wakes every waiter without changing the value
func (s *Synced[T]) Notify() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Wait blocks until pred(value) holds. There is no timeout; ctx only exists
// so goroutines can be torn down with the process.
func (s *Synced[T]) Wait(ctx context.Context, pred func(T) bool) error {
	stop := context.AfterFunc(ctx, s.Notify)
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for !pred(s.value) {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// Flag is a synchronized boolean used as a readiness gate
type Flag struct {
	*Synced[bool]
}

// NewFlag creates a flag with the given initial value
func NewFlag(initial bool) Flag {
	return Flag{NewSynced(initial)}
}

// Set stores v; waiters are woken when v is true or force is set
func (f Flag) Set(v bool, force bool) {
	if v || force {
		f.Synced.Set(v)
		return
	}
	f.Store(v)
}

// WaitUntilTrue blocks until the flag is true
func (f Flag) WaitUntilTrue(ctx context.Context) error {
	return f.Wait(ctx, func(v bool) bool { return v })
}

// WaitUntilFalse blocks until the flag is false. Only forced false
// transitions wake these waiters.
func (f Flag) WaitUntilFalse(ctx context.Context) error {
	return f.Wait(ctx, func(v bool) bool { return !v })
}
