package kernel

import (
	"fmt"
	"unsafe"
)

// InitCore prepares core id to run user code: it fills in the core's
// task-state segment and descriptor, creates the core's first task, loads
// the descriptor registers and seeds the runqueue with that task.
//
// The first task becomes runqueue entry 0, the core's idle task. On the boot
// core it starts at the program's user entry, elsewhere at the idle entry.
// Call Start to enter it.
func (k *Kernel) InitCore(id int) (TaskID, error) {
	if id < 0 || id >= len(k.cores) {
		return NoTask, fmt.Errorf("init core %d: no such core", id)
	}
	c := &k.cores[id]
	if c.Current() != NoTask {
		return NoTask, fmt.Errorf("init core %d: already running task %d", id, c.Current())
	}

	l := k.layout
	c.tss = TSS{
		ESP0: l.KernelStackTop - uint32(id)*(l.KernelStackSize+l.KernelStackGap),
		SS0:  GDKernelData,
		FS:   GDUserData | RPLUser,
		GS:   GDUserData | RPLUser,
	}
	d := Seg16(STST32Avail, uint32(uintptr(unsafe.Pointer(&c.tss))), TSSSize, 0)
	d.S = 0
	k.gdt[tssSelector(id)>>3] = d.Encode()

	tid, err := k.create(c)
	if err != nil {
		return NoTask, fmt.Errorf("init core %d: %w", id, err)
	}
	t := &k.tasks[tid]
	if err := k.mapImage(t.Space); err != nil {
		k.fatalf(c, "init core %d: %v", id, err)
	}
	if id == BootCore {
		t.TF.EIP = k.image.UserEntry
	} else {
		t.TF.EIP = k.image.IdleEntry
	}

	k.cpu.LoadGDT(id, k.gdt)
	k.cpu.LoadLDT(id, 0)
	k.cpu.LoadTR(id, tssSelector(id))

	t.setState(TaskRunning)
	c.rq.seed(tid)
	c.setCurrent(tid)
	k.logf("kernel: core %d up, task %d at %#x, kernel stack %#x", id, tid, t.TF.EIP, c.tss.ESP0)
	return tid, nil
}

// TSS returns a copy of core id's task-state segment.
func (k *Kernel) TSS(id int) TSS { return k.cores[id].tss }
