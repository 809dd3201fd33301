package kernel

import (
	"fmt"
	"sync/atomic"

	"mpkern/hal"
)

const (
	// MaxCores bounds the descriptor table: one task-state segment per core.
	MaxCores = 8

	// BootCore is the core that advances the global tick counter.
	BootCore = 0

	DefaultMaxTasks = 10
	DefaultQuantum  = 100
)

// Config sizes the task layer.
type Config struct {
	// MaxTasks is the capacity of the task table.
	MaxTasks int
	// Quantum is the number of ticks a task runs before it is preempted.
	Quantum int
}

func (c Config) withDefaults() Config {
	if c.MaxTasks == 0 {
		c.MaxTasks = DefaultMaxTasks
	}
	if c.Quantum == 0 {
		c.Quantum = DefaultQuantum
	}
	return c
}

// Core is the per-core record: its runqueue, its task-state segment and the
// task it is running.
type Core struct {
	ID  int
	rq  Runqueue
	tss TSS
	cur atomic.Int32
}

// Current returns the task running on the core, or NoTask before boot.
func (c *Core) Current() TaskID { return TaskID(c.cur.Load()) }

func (c *Core) setCurrent(id TaskID) { c.cur.Store(int32(id)) }

// Runqueue returns the core's runqueue.
func (c *Core) Runqueue() *Runqueue { return &c.rq }

// Kernel is the task layer shared by every core.
type Kernel struct {
	hal    hal.HAL
	cpu    hal.CPU
	mmu    hal.MMU
	log    hal.Logger
	layout hal.Layout
	image  hal.Image
	cfg    Config

	tasks     []Task
	allocLock Spinlock
	forkLock  Spinlock
	forkNext  int

	cores []Core
	gdt   []uint64
	ticks atomic.Uint64

	handlers [256]func(c *Core)
	obs      Observer
	panic    panicState
}

// New builds the task table and registers the trap entry with the
// interrupt controller. Every slot starts FREE.
func New(h hal.HAL, cfg Config) (*Kernel, error) {
	cfg = cfg.withDefaults()
	if cfg.MaxTasks < 1 {
		return nil, fmt.Errorf("kernel: invalid task table size %d", cfg.MaxTasks)
	}
	if cfg.Quantum < 1 {
		return nil, fmt.Errorf("kernel: invalid quantum %d", cfg.Quantum)
	}
	n := h.CPU().Count()
	if n < 1 || n > MaxCores {
		return nil, fmt.Errorf("kernel: %d cores, want 1..%d", n, MaxCores)
	}
	if n > cfg.MaxTasks {
		return nil, fmt.Errorf("kernel: %d cores need at least %d task slots, have %d", n, n, cfg.MaxTasks)
	}

	k := &Kernel{
		hal:    h,
		cpu:    h.CPU(),
		mmu:    h.MMU(),
		log:    h.Logger(),
		layout: h.Layout(),
		image:  h.Image(),
		cfg:    cfg,
		tasks:  make([]Task, cfg.MaxTasks),
		cores:  make([]Core, n),
	}
	k.allocLock.init("task_create")
	k.forkLock.init("sys_fork")
	for i := range k.tasks {
		k.tasks[i].ID = TaskID(i)
		k.tasks[i].ParentID = NoTask
		k.tasks[i].setState(TaskFree)
	}
	for i := range k.cores {
		c := &k.cores[i]
		c.ID = i
		c.setCurrent(NoTask)
		c.rq.init(fmt.Sprintf("runqueue%d", i), cfg.MaxTasks)
	}
	k.gdt = newGDT(n)

	k.handlers[VectorTimer] = k.timerInterrupt
	k.handlers[VectorSyscall] = k.syscall
	intr := h.Interrupts()
	intr.Register(VectorTimer, k.trap)
	intr.Register(VectorSyscall, k.trap)
	return k, nil
}

func (k *Kernel) logf(format string, args ...any) {
	if k.log == nil {
		return
	}
	k.log.WriteLineString(fmt.Sprintf(format, args...))
}

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Cores returns the number of cores.
func (k *Kernel) Cores() int { return len(k.cores) }

// Core returns the record of core id.
func (k *Kernel) Core(id int) *Core { return &k.cores[id] }

// Lookup returns a copy of task slot id.
func (k *Kernel) Lookup(id TaskID) (TaskInfo, bool) {
	if !k.validID(id) {
		return TaskInfo{}, false
	}
	return k.tasks[id].info(), true
}

// Live returns the number of non-free task slots.
func (k *Kernel) Live() int {
	n := 0
	for i := range k.tasks {
		if k.tasks[i].State() != TaskFree {
			n++
		}
	}
	return n
}

func (k *Kernel) validID(id TaskID) bool {
	return id >= 0 && int(id) < len(k.tasks)
}

// TaskStatus is one runqueue entry as seen by Status.
type TaskStatus struct {
	ID       TaskID
	ParentID TaskID
	State    TaskState
	Quantum  int
}

// CoreStatus is a snapshot of one core.
type CoreStatus struct {
	ID      int
	Current TaskID
	Queue   []TaskStatus
}

// Status returns a snapshot of every core's runqueue.
func (k *Kernel) Status() []CoreStatus {
	out := make([]CoreStatus, len(k.cores))
	for i := range k.cores {
		c := &k.cores[i]
		cs := CoreStatus{ID: c.ID, Current: c.Current()}
		c.rq.each(func(id TaskID) {
			t := &k.tasks[id]
			cs.Queue = append(cs.Queue, TaskStatus{
				ID:       id,
				ParentID: t.ParentID,
				State:    t.State(),
				Quantum:  t.Quantum(),
			})
		})
		out[i] = cs
	}
	return out
}
