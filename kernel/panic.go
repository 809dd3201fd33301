package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// PanicInfo describes the unrecoverable error that halted a core.
type PanicInfo struct {
	Core   int
	TaskID TaskID
	Value  any
	Stack  []byte
}

// Halt is the panic value that stops a core after an unrecoverable error.
type Halt struct {
	Core   int
	Reason string
}

func (h *Halt) Error() string {
	return fmt.Sprintf("kernel halted on core %d: %s", h.Core, h.Reason)
}

type panicState struct {
	active  atomic.Bool
	once    sync.Once
	handler atomic.Value // func(PanicInfo)
}

// InPanicMode reports whether a core of k has halted.
func (k *Kernel) InPanicMode() bool {
	return k.panic.active.Load()
}

// SetPanicHandler installs the handler run when the first core halts.
//
// The handler is invoked at most once. It must not panic.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.panic.handler.Store(fn)
}

func (k *Kernel) triggerPanic(info PanicInfo) {
	k.panic.once.Do(func() {
		k.panic.active.Store(true)
		info.Stack = captureStack()
		if v := k.panic.handler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}

// fatalf stops core c. It does not return.
func (k *Kernel) fatalf(c *Core, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	k.logf("kernel: fatal on core %d: %s", c.ID, msg)
	k.triggerPanic(PanicInfo{Core: c.ID, TaskID: c.Current(), Value: msg})
	panic(&Halt{Core: c.ID, Reason: msg})
}
