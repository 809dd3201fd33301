package kernel

import (
	"fmt"

	"mpkern/hal"
)

// create claims the first free slot of the task table and builds a task that
// is ready to enter user mode: a fresh address space, a mapped user stack, a
// zeroed frame with user selectors and a full quantum. The task is not queued
// anywhere; the caller owns that step.
func (k *Kernel) create(c *Core) (TaskID, error) {
	k.allocLock.Lock()
	id := NoTask
	for i := range k.tasks {
		if k.tasks[i].State() == TaskFree {
			id = TaskID(i)
			break
		}
	}
	if id == NoTask {
		k.allocLock.Unlock()
		return NoTask, ErrNoFreeSlot
	}
	t := &k.tasks[id]
	t.setState(TaskRunnable)
	k.allocLock.Unlock()

	as, err := k.mmu.NewSpace()
	if err != nil {
		k.fatalf(c, "no address space for task %d: %v", id, err)
	}
	t.Space = as

	pg := k.layout.PageSize
	for va := k.layout.StackBase(); va < k.layout.UserStackTop; va += pg {
		if err := k.mmu.MapPage(as, va, hal.PermUser|hal.PermWrite|hal.PermPresent); err != nil {
			k.fatalf(c, "user stack for task %d: %v", id, err)
		}
	}

	t.TF = hal.Trapframe{
		CS:  GDUserText | RPLUser,
		DS:  GDUserData | RPLUser,
		ES:  GDUserData | RPLUser,
		SS:  GDUserData | RPLUser,
		ESP: k.layout.UserStackTop - pg,
	}

	t.ID = id
	t.ParentID = 0
	if cur := c.Current(); cur != NoTask {
		t.ParentID = cur
	}
	t.setQuantum(k.cfg.Quantum)

	k.emit(Event{Kind: EventCreate, Core: c.ID, Task: id, Other: t.ParentID})
	return id, nil
}

// free releases the address space of task id. The task must already be off
// every runqueue. The core is left on the kernel address space.
func (k *Kernel) free(c *Core, id TaskID) {
	t := &k.tasks[id]
	k.mmu.Switch(c.ID, k.mmu.KernelSpace())

	pg := k.layout.PageSize
	for va := k.layout.StackBase(); va < k.layout.UserStackTop; va += pg {
		if err := k.mmu.UnmapPage(t.Space, va); err != nil {
			k.logf("kernel: free task %d: %v", id, err)
		}
	}
	if err := k.mmu.ReleaseTables(t.Space); err != nil {
		k.logf("kernel: free task %d tables: %v", id, err)
	}
	if err := k.mmu.DestroySpace(t.Space); err != nil {
		k.logf("kernel: free task %d space: %v", id, err)
	}
	t.Space = 0
}

// mapImage maps the sections of the shared program image into as.
func (k *Kernel) mapImage(as hal.AddressSpace) error {
	for _, r := range k.image.Regions() {
		if r.Size == 0 {
			continue
		}
		if err := k.mmu.MapShared(as, r.Start, r.Size, hal.PermUser|hal.PermWrite|hal.PermPresent); err != nil {
			return fmt.Errorf("map image %#x+%#x: %w", r.Start, r.Size, err)
		}
	}
	return nil
}
