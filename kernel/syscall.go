package kernel

import "fmt"

// System call numbers, passed in EAX. The first argument is in EDX and the
// second in ECX; the result comes back in EAX.
const (
	SysGetPID uint32 = iota + 1
	SysGetCID
	SysSleep
	SysKill
	SysGetTicks
	SysFork
	SysYield
	SysSpawn
)

// SysFailed is the result of a failed system call.
const SysFailed = ^uint32(0)

// syscall dispatches the system call requested by the running task of c.
// Calls that schedule (sleep, yield, a successful kill) do not return here.
func (k *Kernel) syscall(c *Core) {
	id := c.Current()
	tf := &k.tasks[id].TF
	a1 := tf.Regs.EDX

	switch num := tf.Regs.EAX; num {
	case SysGetPID:
		tf.Regs.EAX = uint32(id)
	case SysGetCID:
		tf.Regs.EAX = uint32(c.ID)
	case SysGetTicks:
		tf.Regs.EAX = uint32(k.Ticks())
	case SysFork:
		child, err := k.Fork(c)
		tf.Regs.EAX = k.result(c, "fork", child, err)
	case SysSpawn:
		entry := a1
		if entry == 0 {
			entry = k.image.UserEntry
		}
		child, err := k.Spawn(c, entry)
		tf.Regs.EAX = k.result(c, "spawn", child, err)
	case SysKill:
		tf.Regs.EAX = 0
		if err := k.Kill(c, TaskID(int32(a1))); err != nil {
			tf.Regs.EAX = k.result(c, "kill", NoTask, err)
		}
	case SysSleep:
		tf.Regs.EAX = 0
		k.Sleep(c, int(int32(a1)))
	case SysYield:
		tf.Regs.EAX = 0
		k.YieldCurrent(c)
	default:
		k.logf("kernel: core %d task %d: %v", c.ID, id, fmt.Errorf("call %d: %w", num, ErrBadSyscall))
		tf.Regs.EAX = SysFailed
	}
}

func (k *Kernel) result(c *Core, op string, id TaskID, err error) uint32 {
	if err != nil {
		k.logf("kernel: core %d %s: %v", c.ID, op, err)
		return SysFailed
	}
	return uint32(id)
}
