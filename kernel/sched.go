package kernel

// Yield makes a round-robin scheduling decision on core c and switches to the
// chosen task. The runqueue lock is held only for the scan. The idle entry is
// chosen only when no other entry is runnable.
//
// Yield does not return: the core continues wherever the chosen task's saved
// context points.
func (k *Kernel) Yield(c *Core) {
	idx, id := c.rq.next(func(id TaskID) bool {
		return k.tasks[id].State() == TaskRunnable
	})
	if idx < 0 {
		k.fatalf(c, "yield on an empty runqueue")
	}
	k.run(c, idx, id)
}

// run records entry idx as current, marks its task running, switches to its
// address space and restores its context. It does not return.
func (k *Kernel) run(c *Core, idx int, id TaskID) {
	prev := c.Current()
	c.rq.cur = idx
	c.setCurrent(id)
	t := &k.tasks[id]
	t.setState(TaskRunning)
	if prev != id {
		k.emit(Event{Kind: EventSwitch, Core: c.ID, Task: id, Other: prev})
	}
	k.mmu.Switch(c.ID, t.Space)
	k.cpu.Restore(c.ID, &t.TF)
}

// resume restores the task already running on c. It does not return.
func (k *Kernel) resume(c *Core) {
	id := c.Current()
	if id == NoTask {
		k.fatalf(c, "resume with no task")
	}
	t := &k.tasks[id]
	k.mmu.Switch(c.ID, t.Space)
	k.cpu.Restore(c.ID, &t.TF)
}

// Start enters the task InitCore installed on core id. It does not return.
func (k *Kernel) Start(id int) {
	k.resume(&k.cores[id])
}
