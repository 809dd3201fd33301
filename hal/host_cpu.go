package hal

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrNoRestore is returned when a trap entry returned to its caller instead
// of restoring a context.
var ErrNoRestore = errors.New("trap entry returned without restoring a context")

// restoreSignal unwinds a trap entry back to Host.Enter, the host stand-in
// for the iret at the end of a trap stub.
type restoreSignal struct {
	core int
	tf   Trapframe
}

type hostCore struct {
	gdt    []uint64
	ldt    uint16
	tr     uint16
	frame  Trapframe
	booted bool
}

type hostCPU struct {
	mu    sync.Mutex
	cores []hostCore
}

func newHostCPU(n int) *hostCPU {
	return &hostCPU{cores: make([]hostCore, n)}
}

func (c *hostCPU) Count() int { return len(c.cores) }

func (c *hostCPU) LoadGDT(core int, gdt []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cores[core].gdt = gdt
}

func (c *hostCPU) LoadLDT(core int, sel uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cores[core].ldt = sel
}

func (c *hostCPU) LoadTR(core int, sel uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cores[core].tr = sel
}

func (c *hostCPU) Restore(core int, tf *Trapframe) {
	panic(restoreSignal{core: core, tf: *tf})
}

func (c *hostCPU) resumed(core int, tf Trapframe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cores[core].frame = tf
	c.cores[core].booted = true
}

// Registers returns the descriptor registers last loaded on core.
func (c *hostCPU) Registers(core int) (gdt []uint64, ldt, tr uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hc := c.cores[core]
	return hc.gdt, hc.ldt, hc.tr
}

// Frame returns the context core is currently executing.
func (c *hostCPU) Frame(core int) (Trapframe, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cores[core].frame, c.cores[core].booted
}

type hostInterrupts struct {
	mu       sync.Mutex
	handlers [256]TrapHandler
	eoi      []atomic.Uint64
}

func newHostInterrupts(cores int) *hostInterrupts {
	return &hostInterrupts{eoi: make([]atomic.Uint64, cores)}
}

func (in *hostInterrupts) Register(vector uint8, h TrapHandler) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.handlers[vector] = h
}

func (in *hostInterrupts) handler(vector uint8) TrapHandler {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.handlers[vector]
}

func (in *hostInterrupts) EOI(core int) { in.eoi[core].Add(1) }

// EOIs returns how many interrupts core has acknowledged.
func (in *hostInterrupts) EOIs(core int) uint64 { return in.eoi[core].Load() }

// PITBaseHz is the input clock of the programmable interval timer.
const PITBaseHz = 1193180

type hostTimer struct {
	div atomic.Uint32
}

func (t *hostTimer) SetDivisor(div uint16) { t.div.Store(uint32(div)) }
func (t *hostTimer) Divisor() uint16       { return uint16(t.div.Load()) }

// Hz returns the programmed tick rate, or 0 when the timer is not running.
func (t *hostTimer) Hz() int {
	d := t.div.Load()
	if d == 0 {
		return 0
	}
	return PITBaseHz / int(d)
}

// Enter runs entry on core the way a trap stub would and returns the frame
// the core resumed with when entry restored a context.
func (h *Host) Enter(core int, entry func()) (tf Trapframe, err error) {
	if core < 0 || core >= h.cpu.Count() {
		return Trapframe{}, fmt.Errorf("enter core %d: no such core", core)
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		sig, ok := r.(restoreSignal)
		if !ok {
			panic(r)
		}
		if sig.core != core {
			tf, err = Trapframe{}, fmt.Errorf("core %d restored a context for core %d", core, sig.core)
			return
		}
		h.cpu.resumed(core, sig.tf)
		tf, err = sig.tf, nil
	}()
	entry()
	return Trapframe{}, ErrNoRestore
}

// Raise delivers vector on core with tf as the interrupted context.
func (h *Host) Raise(core int, vector uint8, tf *Trapframe) (Trapframe, error) {
	hnd := h.intr.handler(vector)
	if hnd == nil {
		return *tf, fmt.Errorf("vector %d: no handler registered", vector)
	}
	frame := *tf
	frame.TrapNo = uint32(vector)
	return h.Enter(core, func() { hnd(core, vector, &frame) })
}
