package batch

import "sync"

// Lease gives one pipeline stage exclusive execution. Each stage (submit,
// status check, publish) holds its own Lease instance; different stages may
// run concurrently, two runs of the same stage may not.
type Lease struct {
	name string
	mu   sync.Mutex
}

// NewLease creates a named stage lease.
func NewLease(name string) *Lease {
	return &Lease{name: name}
}

// Name returns the stage name the lease guards.
func (l *Lease) Name() string {
	return l.name
}

// TryAcquire attempts to take the lease without blocking. It reports false
// when the stage is already running.
func (l *Lease) TryAcquire() bool {
	return l.mu.TryLock()
}

// Release returns the lease. Calling Release without holding the lease is a
// programming error and panics, same as unlocking an unlocked mutex.
func (l *Lease) Release() {
	l.mu.Unlock()
}
