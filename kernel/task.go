package kernel

import (
	"fmt"
	"sync/atomic"

	"mpkern/hal"
)

// TaskID is the index of a task's slot in the task table.
type TaskID int32

// NoTask marks a core that has no task yet.
const NoTask TaskID = -1

// TaskState is the scheduling state of a task slot.
type TaskState uint32

const (
	TaskFree TaskState = iota
	TaskRunnable
	TaskRunning
	TaskSleep
)

func (s TaskState) String() string {
	switch s {
	case TaskFree:
		return "free"
	case TaskRunnable:
		return "runnable"
	case TaskRunning:
		return "running"
	case TaskSleep:
		return "sleep"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Task is one slot of the task table.
//
// The state and quantum counter are read across cores, everything else is
// only touched by the core that owns the task (or by its creator before the
// task is published on a runqueue).
type Task struct {
	ID       TaskID
	ParentID TaskID
	Space    hal.AddressSpace
	TF       hal.Trapframe

	state  atomic.Uint32
	remind atomic.Int32
}

func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

func (t *Task) setState(s TaskState) { t.state.Store(uint32(s)) }

// Quantum returns the remaining tick budget (or sleep ticks while sleeping).
func (t *Task) Quantum() int { return int(t.remind.Load()) }

func (t *Task) setQuantum(n int) { t.remind.Store(int32(n)) }

// tick decrements the counter and reports whether it reached zero.
func (t *Task) tick() bool { return t.remind.Add(-1) == 0 }

// TaskInfo is a copy of a task slot.
type TaskInfo struct {
	ID       TaskID
	ParentID TaskID
	State    TaskState
	Quantum  int
	Space    hal.AddressSpace
	TF       hal.Trapframe
}

func (t *Task) info() TaskInfo {
	return TaskInfo{
		ID:       t.ID,
		ParentID: t.ParentID,
		State:    t.State(),
		Quantum:  t.Quantum(),
		Space:    t.Space,
		TF:       t.TF,
	}
}
