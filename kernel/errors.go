package kernel

import "errors"

var (
	// ErrNoFreeSlot is returned by create and fork when the task table is full.
	ErrNoFreeSlot = errors.New("no free task slot")

	ErrInvalidTask   = errors.New("task id out of range")
	ErrNotOnCore     = errors.New("task is not queued on this core")
	ErrIdleTask      = errors.New("idle task cannot be removed")
	ErrNotQueued     = errors.New("task not queued")
	ErrRunqueueFull  = errors.New("runqueue full")
	ErrNoCurrentTask = errors.New("core has no current task")
	ErrTimerRange    = errors.New("timer frequency out of range")
	ErrBadSyscall    = errors.New("unknown system call")
)
