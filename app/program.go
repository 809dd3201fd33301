package app

import (
	"mpkern/hal"
	"mpkern/internal/config"
	"mpkern/kernel"
)

// The program image every task runs has three entry points: the boot task's
// init loop, the idle loop, and the worker loop forked children jump to. All
// of a task's progress lives in its saved registers, so a forked child starts
// with exactly its parent's state.
//
//	EDI  system call whose result is in EAX, or 0
//	ESI  init: children forked; worker: own id | pidKnown
//	EBX  worker: ticks of work done
const pidKnown = 1 << 31

type program struct {
	img    hal.Image
	cfg    config.Program
	worker uint32
}

func newProgram(img hal.Image, cfg config.Program) *program {
	return &program{img: img, cfg: cfg, worker: img.Text.Start + 0x1000}
}

// step runs the task whose context is tf for one tick. It reports whether tf
// now holds a system call request.
func (p *program) step(tf *hal.Trapframe) bool {
	pending := tf.Regs.EDI
	tf.Regs.EDI = 0

	if pending == kernel.SysFork && tf.Regs.EAX == 0 {
		// Child side of a fork: start over in the worker loop.
		tf.EIP = p.worker
		tf.Regs.EBX = 0
		tf.Regs.ESI = 0
		return false
	}

	switch tf.EIP {
	case p.img.UserEntry:
		return p.init(tf, pending)
	case p.worker:
		return p.work(tf, pending)
	default:
		return false
	}
}

func (p *program) init(tf *hal.Trapframe, pending uint32) bool {
	if pending == kernel.SysFork {
		if tf.Regs.EAX == kernel.SysFailed {
			// Table full: stop forking.
			tf.Regs.ESI = uint32(p.cfg.Children)
		} else {
			tf.Regs.ESI++
		}
	}
	if tf.Regs.ESI < uint32(p.cfg.Children) {
		return call(tf, kernel.SysFork, 0)
	}
	if p.cfg.SleepTicks > 0 && pending != kernel.SysSleep {
		return call(tf, kernel.SysSleep, uint32(p.cfg.SleepTicks))
	}
	return false
}

func (p *program) work(tf *hal.Trapframe, pending uint32) bool {
	if pending == kernel.SysGetPID {
		tf.Regs.ESI = tf.Regs.EAX | pidKnown
		return false
	}
	if tf.Regs.ESI&pidKnown == 0 {
		return call(tf, kernel.SysGetPID, 0)
	}

	tf.Regs.EBX++
	n := int(tf.Regs.EBX)
	if p.cfg.Lifetime > 0 && n >= p.cfg.Lifetime {
		return call(tf, kernel.SysKill, tf.Regs.ESI&^pidKnown)
	}
	if p.cfg.SleepEvery > 0 && p.cfg.SleepTicks > 0 && n%p.cfg.SleepEvery == 0 {
		return call(tf, kernel.SysSleep, uint32(p.cfg.SleepTicks))
	}
	return false
}

func call(tf *hal.Trapframe, num, arg uint32) bool {
	tf.Regs.EAX = num
	tf.Regs.EDX = arg
	tf.Regs.EDI = num
	return true
}
