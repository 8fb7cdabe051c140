// Package syncutils provides the lock used by publishers to serialize
// mutations of shared backend state such as a git working tree.
package syncutils

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Semaphore grants up to capacity outstanding handles. Waiters are served in
// FIFO order. It is not reentrant: a holder asking again waits like anyone else.
type Semaphore struct {
	sem      *semaphore.Weighted
	capacity int64
}

// NewSemaphore creates a semaphore with the given capacity. Capacity below one is treated as one.
func NewSemaphore(capacity int64) *Semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return &Semaphore{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

// Lock blocks until a handle is granted or ctx is done. The returned release
// function is idempotent; calling it more than once frees a single slot.
func (s *Semaphore) Lock(ctx context.Context) (release func(), err error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.sem.Release(1) })
	}, nil
}

// TryLock grants a handle only if one is free right now.
func (s *Semaphore) TryLock() (release func(), ok bool) {
	if !s.sem.TryAcquire(1) {
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.sem.Release(1) })
	}, true
}

// Capacity returns the number of handles that may be outstanding at once.
func (s *Semaphore) Capacity() int64 {
	return s.capacity
}

// Mutex is a Semaphore with capacity one.
type Mutex struct {
	Semaphore
}

// NewMutex creates an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{Semaphore: *NewSemaphore(1)}
}
