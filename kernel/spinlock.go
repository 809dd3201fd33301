package kernel

import (
	"runtime"
	"sync/atomic"
)

// Spinlock is a busy-wait mutual exclusion lock. Lock never parks the core: it
// spins until the lock is free. There is no timeout and no deadlock detection,
// so every caller must take locks in the order
//
//	task table allocation lock -> runqueue lock -> fork target lock
//
// and never in reverse.
type Spinlock struct {
	_      [0]func() // prevent accidental copying.
	locked atomic.Uint32
	name   string
}

func (l *Spinlock) init(name string) {
	l.locked.Store(0)
	l.name = name
}

// Lock spins until the lock is acquired.
func (l *Spinlock) Lock() {
	for !l.locked.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// TryLock acquires the lock if it is free.
func (l *Spinlock) TryLock() bool {
	return l.locked.CompareAndSwap(0, 1)
}

// Unlock releases the lock. Releasing a free lock is a kernel bug.
func (l *Spinlock) Unlock() {
	if l.locked.Swap(0) == 0 {
		panic("kernel: release of free spinlock " + l.name)
	}
}

// Holding reports whether the lock is currently held by anyone.
func (l *Spinlock) Holding() bool {
	return l.locked.Load() != 0
}
