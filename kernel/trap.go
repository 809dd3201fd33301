package kernel

import "mpkern/hal"

// trap is the common entry of every vector the kernel registers. The
// interrupted context is saved into the running task, the vector's handler
// runs, and the running task (possibly a different one) is resumed.
func (k *Kernel) trap(core int, vector uint8, tf *hal.Trapframe) {
	c := &k.cores[core]
	id := c.Current()
	if id == NoTask {
		// Core not booted yet: acknowledge and go back where we were.
		if vector == VectorTimer {
			k.hal.Interrupts().EOI(core)
		}
		k.cpu.Restore(core, tf)
		return
	}
	k.tasks[id].TF = *tf
	if h := k.handlers[vector]; h != nil {
		h(c)
	} else {
		k.logf("kernel: core %d: unexpected trap %d", core, vector)
	}
	k.resume(c)
}
