package app

import (
	"runtime"
	"sync/atomic"
)

// request is a system call injected into a core by the console. It is made
// on behalf of whatever task that core runs when the request is taken.
type request struct {
	num uint32
	arg uint32
}

const mailboxSlots = 8

type mailboxSlot struct {
	ready atomic.Bool
	req   request
}

// Mailbox is a fixed-size multi-producer, single-consumer queue of requests.
// It never allocates and never parks: a full mailbox refuses the send and an
// empty one returns immediately.
type Mailbox struct {
	_     [0]func() // prevent accidental copying.
	head  atomic.Uint32
	tail  atomic.Uint32
	slots [mailboxSlots]mailboxSlot
}

// TrySend enqueues req, returning false if the mailbox is full.
func (mb *Mailbox) TrySend(req request) bool {
	for {
		head := mb.head.Load()
		tail := mb.tail.Load()
		if head-tail >= mailboxSlots {
			return false
		}
		if mb.head.CompareAndSwap(head, head+1) {
			slot := &mb.slots[head%mailboxSlots]
			slot.req = req
			slot.ready.Store(true)
			return true
		}
		runtime.Gosched()
	}
}

// TryRecv dequeues one request, returning false if none is ready. Only the
// owning core calls it.
func (mb *Mailbox) TryRecv() (request, bool) {
	tail := mb.tail.Load()
	if tail == mb.head.Load() {
		return request{}, false
	}
	slot := &mb.slots[tail%mailboxSlots]
	if !slot.ready.Load() {
		// Reserved but not yet written.
		return request{}, false
	}
	req := slot.req
	slot.ready.Store(false)
	mb.tail.Store(tail + 1)
	return req, true
}

// Len returns the number of reserved slots.
func (mb *Mailbox) Len() int {
	return int(mb.head.Load() - mb.tail.Load())
}
