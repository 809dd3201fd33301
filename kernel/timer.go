package kernel

import "fmt"

// PITHz is the input clock of the programmable interval timer.
const PITHz = 1193180

// Interrupt vectors.
const (
	IRQOffset = 32
	IRQTimer  = 0

	VectorTimer   uint8 = IRQOffset + IRQTimer
	VectorSyscall uint8 = 0x30
)

// SetTimer programs the timer to interrupt every core hz times a second.
func (k *Kernel) SetTimer(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("set timer %d Hz: %w", hz, ErrTimerRange)
	}
	div := PITHz / hz
	if div == 0 || div > 0xffff {
		return fmt.Errorf("set timer %d Hz (divisor %d): %w", hz, div, ErrTimerRange)
	}
	k.hal.Timer().SetDivisor(uint16(div))
	k.logf("kernel: timer at %d Hz, divisor %d", hz, div)
	return nil
}

// Ticks returns the number of timer ticks seen by the boot core.
func (k *Kernel) Ticks() uint64 { return k.ticks.Load() }

// timerInterrupt ages the sleepers of c and charges one tick to the running
// task. When the running task's quantum is used up it is preempted.
func (k *Kernel) timerInterrupt(c *Core) {
	k.hal.Interrupts().EOI(c.ID)
	if c.ID == BootCore {
		k.ticks.Add(1)
	}
	id := c.Current()
	if id == NoTask {
		return
	}

	c.rq.each(func(tid TaskID) {
		t := &k.tasks[tid]
		if t.State() != TaskSleep {
			return
		}
		if t.tick() {
			t.setQuantum(k.cfg.Quantum)
			t.setState(TaskRunnable)
			k.emit(Event{Kind: EventWake, Core: c.ID, Task: tid})
		}
	})

	t := &k.tasks[id]
	if t.tick() {
		t.setState(TaskRunnable)
		t.setQuantum(k.cfg.Quantum)
		k.emit(Event{Kind: EventPreempt, Core: c.ID, Task: id})
		k.Yield(c)
	}
}
