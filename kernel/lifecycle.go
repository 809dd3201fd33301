package kernel

import (
	"errors"
	"fmt"
)

// Fork duplicates the task running on c. The child gets a copy of the
// parent's saved context and user stack, the shared program image, and is
// queued on the next core in round-robin order. The child's return register
// is zero; the parent gets the child's id.
func (k *Kernel) Fork(c *Core) (TaskID, error) {
	pid := c.Current()
	if pid == NoTask {
		return NoTask, ErrNoCurrentTask
	}
	id, err := k.create(c)
	if err != nil {
		return NoTask, err
	}
	parent, child := &k.tasks[pid], &k.tasks[id]
	child.TF = parent.TF

	if err := k.copyStack(c, parent, child); err != nil {
		k.fatalf(c, "fork %d -> %d: %v", pid, id, err)
	}
	if err := k.mapImage(child.Space); err != nil {
		k.fatalf(c, "fork %d -> %d: %v", pid, id, err)
	}
	child.TF.Regs.EAX = 0

	target := k.nextTarget()
	if err := k.cores[target].rq.Add(id); err != nil {
		k.release(c, id)
		return NoTask, err
	}
	k.emit(Event{Kind: EventFork, Core: c.ID, Task: id, Other: pid, Target: target})
	return id, nil
}

// Spawn creates a task that starts at entry in the shared program image and
// queues it like a forked child.
func (k *Kernel) Spawn(c *Core, entry uint32) (TaskID, error) {
	id, err := k.create(c)
	if err != nil {
		return NoTask, err
	}
	t := &k.tasks[id]
	if err := k.mapImage(t.Space); err != nil {
		k.fatalf(c, "spawn %d: %v", id, err)
	}
	t.TF.EIP = entry

	target := k.nextTarget()
	if err := k.cores[target].rq.Add(id); err != nil {
		k.release(c, id)
		return NoTask, err
	}
	k.emit(Event{Kind: EventSpawn, Core: c.ID, Task: id, Other: t.ParentID, Target: target})
	return id, nil
}

// copyStack copies the parent's user stack into the child's page by page.
// Both spaces map the same virtual range, so the copy runs on the kernel
// address space and the parent's space is restored afterwards.
func (k *Kernel) copyStack(c *Core, parent, child *Task) error {
	k.mmu.Switch(c.ID, k.mmu.KernelSpace())
	defer k.mmu.Switch(c.ID, parent.Space)

	pg := k.layout.PageSize
	for va := k.layout.StackBase(); va < k.layout.UserStackTop; va += pg {
		src, err := k.mmu.KernelView(c.ID, parent.Space, va)
		if err != nil {
			return fmt.Errorf("parent stack %#x: %w", va, err)
		}
		dst, err := k.mmu.KernelView(c.ID, child.Space, va)
		if err != nil {
			return fmt.Errorf("child stack %#x: %w", va, err)
		}
		copy(dst, src)
	}
	return nil
}

// nextTarget advances the fork round-robin counter over the cores.
func (k *Kernel) nextTarget() int {
	k.forkLock.Lock()
	defer k.forkLock.Unlock()
	k.forkNext++
	if k.forkNext >= len(k.cores) {
		k.forkNext = 0
	}
	return k.forkNext
}

// release undoes create for a task that was never queued.
func (k *Kernel) release(c *Core, id TaskID) {
	active := k.mmu.Active(c.ID)
	k.free(c, id)
	k.tasks[id].setState(TaskFree)
	k.mmu.Switch(c.ID, active)
}

// Kill terminates task id, which must be queued on c, and schedules. Killing
// a task other than the caller leaves the caller runnable.
//
// On success Kill does not return. Out-of-range ids, tasks owned by another
// core and the idle task are refused with an error.
func (k *Kernel) Kill(c *Core, id TaskID) error {
	if !k.validID(id) {
		return fmt.Errorf("kill %d: %w", id, ErrInvalidTask)
	}
	if err := c.rq.Remove(id); err != nil {
		if errors.Is(err, ErrNotQueued) {
			return fmt.Errorf("kill %d on core %d: %w", id, c.ID, ErrNotOnCore)
		}
		return fmt.Errorf("kill %d: %w", id, err)
	}
	k.free(c, id)
	k.tasks[id].setState(TaskFree)
	k.emit(Event{Kind: EventKill, Core: c.ID, Task: id})

	if cur := c.Current(); cur != id && cur != NoTask {
		k.tasks[cur].setState(TaskRunnable)
	}
	c.rq.cur = 0
	k.Yield(c)
	return nil
}

// Sleep puts the task running on c to sleep for ticks timer ticks and
// schedules. It does not return.
func (k *Kernel) Sleep(c *Core, ticks int) {
	id := c.Current()
	if id == NoTask {
		k.fatalf(c, "sleep with no task")
	}
	t := &k.tasks[id]
	if ticks <= 0 {
		t.setState(TaskRunnable)
		k.Yield(c)
		return
	}
	t.setQuantum(ticks)
	t.setState(TaskSleep)
	k.emit(Event{Kind: EventSleep, Core: c.ID, Task: id})
	k.Yield(c)
}

// YieldCurrent gives up the rest of the running task's quantum.
func (k *Kernel) YieldCurrent(c *Core) {
	if id := c.Current(); id != NoTask && k.tasks[id].State() == TaskRunning {
		k.tasks[id].setState(TaskRunnable)
	}
	k.Yield(c)
}
