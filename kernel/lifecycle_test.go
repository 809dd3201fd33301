package kernel

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpkern/hal"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestForkCopiesContextAndStack(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{})
	_, err := k.InitCore(0)
	require.NoError(t, err)

	l := h.Layout()
	parent, _ := k.Lookup(0)
	for va := l.StackBase(); va < l.UserStackTop; va += l.PageSize {
		view, err := h.MMU().KernelView(0, parent.Space, va)
		require.NoError(t, err)
		copy(view, fmt.Sprintf("stack page %#x", va))
	}
	_, err = h.Enter(0, func() { k.Start(0) })
	require.NoError(t, err)

	out := sys(t, h, 0, SysFork, 0)
	child := TaskID(out.Regs.EAX)
	require.Equal(t, TaskID(1), child)
	assert.Equal(t, parent.Space, h.MMU().Active(0), "parent space restored")

	parent, _ = k.Lookup(0)
	ci, _ := k.Lookup(child)
	want := parent.TF
	want.Regs.EAX = 0
	assert.Equal(t, want, ci.TF)
	assert.Equal(t, TaskID(0), ci.ParentID)
	assert.Equal(t, TaskRunnable, ci.State)
	assert.NotEqual(t, parent.Space, ci.Space)

	h.MMU().Switch(0, h.MMU().KernelSpace())
	for va := l.StackBase(); va < l.UserStackTop; va += l.PageSize {
		pv, err := h.MMU().KernelView(0, parent.Space, va)
		require.NoError(t, err)
		cv, err := h.MMU().KernelView(0, ci.Space, va)
		require.NoError(t, err)
		require.Equal(t, pv, cv, "stack page %#x", va)
	}

	cv, _ := h.MMU().KernelView(0, ci.Space, l.StackBase())
	cv[0] = 'X'
	pv, _ := h.MMU().KernelView(0, parent.Space, l.StackBase())
	assert.Equal(t, byte('s'), pv[0], "stacks are private copies")

	for _, r := range h.Image().Regions() {
		_, ok := h.Mapping(ci.Space, r.Start)
		assert.True(t, ok, "image region %#x mapped in child", r.Start)
	}
}

func TestForkRoundRobinTargets(t *testing.T) {
	h, k := newTestKernel(t, 2, Config{})
	bootAll(t, h, k)

	for i := 0; i < 3; i++ {
		out := sys(t, h, 0, SysFork, 0)
		require.NotEqual(t, SysFailed, out.Regs.EAX)
	}
	assert.Equal(t, []TaskID{1, 2, 4}, k.Core(1).Runqueue().Tasks())
	assert.Equal(t, []TaskID{0, 3}, k.Core(0).Runqueue().Tasks())

	// A fork on the other core continues the same rotation.
	out := sys(t, h, 1, SysFork, 0)
	assert.Equal(t, uint32(5), out.Regs.EAX)
	assert.Equal(t, []TaskID{0, 3, 5}, k.Core(0).Runqueue().Tasks())
	info, _ := k.Lookup(5)
	assert.Equal(t, TaskID(1), info.ParentID)
}

func TestForkTableFull(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{MaxTasks: 3})
	bootAll(t, h, k)

	assert.Equal(t, uint32(1), sys(t, h, 0, SysFork, 0).Regs.EAX)
	assert.Equal(t, uint32(2), sys(t, h, 0, SysFork, 0).Regs.EAX)
	spaces := h.Spaces()

	out := sys(t, h, 0, SysFork, 0)
	assert.Equal(t, SysFailed, out.Regs.EAX)
	assert.Equal(t, 3, k.Live())
	assert.Equal(t, spaces, h.Spaces(), "nothing leaked by the failed fork")

	_, err := k.Fork(k.Core(0))
	assert.ErrorIs(t, err, ErrNoFreeSlot)
}

func TestKillOtherTask(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{})
	bootAll(t, h, k)
	sys(t, h, 0, SysFork, 0)
	free := h.FreeFrames()
	sys(t, h, 0, SysFork, 0)

	out := sys(t, h, 0, SysKill, 1)
	assert.Equal(t, []TaskID{0, 2}, k.Core(0).Runqueue().Tasks())
	assert.Equal(t, TaskID(2), k.Core(0).Current())
	assert.Equal(t, uint32(0), out.Regs.EAX, "resumed child sees its fork result")

	killed, _ := k.Lookup(1)
	assert.Equal(t, TaskFree, killed.State)
	assert.Zero(t, killed.Space)
	assert.Equal(t, free, h.FreeFrames(), "frames returned")

	caller, _ := k.Lookup(0)
	assert.Equal(t, TaskRunnable, caller.State)
	assert.Equal(t, uint32(0), caller.TF.Regs.EAX)
}

func TestKillSelf(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{})
	bootAll(t, h, k)
	sys(t, h, 0, SysFork, 0)
	sys(t, h, 0, SysYield, 0)
	require.Equal(t, TaskID(1), k.Core(0).Current())

	tf := sys(t, h, 0, SysKill, 1)
	assert.Equal(t, TaskID(0), k.Core(0).Current())
	assert.Equal(t, 1, k.Core(0).Runqueue().Len())
	assert.Equal(t, h.Image().UserEntry, tf.EIP)

	info, _ := k.Lookup(1)
	assert.Equal(t, TaskFree, info.State)
	assert.Equal(t, 1, k.Live())
}

func TestKillRefused(t *testing.T) {
	h, k := newTestKernel(t, 2, Config{})
	bootAll(t, h, k)
	child := TaskID(sys(t, h, 0, SysFork, 0).Regs.EAX)
	require.True(t, k.Core(1).Runqueue().Contains(child))

	for _, id := range []uint32{99, SysFailed, uint32(child), 0} {
		out := sys(t, h, 0, SysKill, id)
		assert.Equal(t, SysFailed, out.Regs.EAX, "kill %d", int32(id))
		assert.Equal(t, TaskID(0), k.Core(0).Current())
	}
	info, _ := k.Lookup(child)
	assert.Equal(t, TaskRunnable, info.State)
	assert.Equal(t, 3, k.Live())

	c := k.Core(0)
	assert.ErrorIs(t, k.Kill(c, 99), ErrInvalidTask)
	assert.ErrorIs(t, k.Kill(c, -1), ErrInvalidTask)
	assert.ErrorIs(t, k.Kill(c, child), ErrNotOnCore)
	assert.ErrorIs(t, k.Kill(c, 0), ErrIdleTask)
}

func TestTableReuseNeverDuplicates(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{MaxTasks: 4})
	bootAll(t, h, k)

	for round := 0; round < 5; round++ {
		var ids []TaskID
		for {
			out := sys(t, h, 0, SysSpawn, 0)
			if out.Regs.EAX == SysFailed {
				break
			}
			ids = append(ids, TaskID(out.Regs.EAX))
			require.LessOrEqual(t, k.Live(), 4)
		}
		require.Equal(t, []TaskID{1, 2, 3}, ids, "round %d", round)
		for _, id := range ids {
			sys(t, h, 0, SysKill, uint32(id))
		}
		require.Equal(t, 1, k.Live())
		require.Equal(t, TaskID(0), k.Core(0).Current())
	}
}

func TestSleepAndWake(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{})
	rec := &recorder{}
	k.SetObserver(rec)
	bootAll(t, h, k)
	sys(t, h, 0, SysFork, 0)

	sys(t, h, 0, SysSleep, 3)
	idle, _ := k.Lookup(0)
	assert.Equal(t, TaskSleep, idle.State)
	assert.Equal(t, 3, idle.Quantum)
	assert.Equal(t, TaskID(1), k.Core(0).Current())

	tick(t, h, 0)
	tick(t, h, 0)
	idle, _ = k.Lookup(0)
	assert.Equal(t, TaskSleep, idle.State)
	assert.Equal(t, 1, idle.Quantum)

	tick(t, h, 0)
	idle, _ = k.Lookup(0)
	assert.Equal(t, TaskRunnable, idle.State)
	assert.Equal(t, DefaultQuantum, idle.Quantum)

	child, _ := k.Lookup(1)
	assert.Equal(t, DefaultQuantum-3, child.Quantum)
	assert.Equal(t, TaskID(1), k.Core(0).Current())

	assert.Equal(t, []EventKind{
		EventCreate,
		EventCreate, EventFork,
		EventSleep, EventSwitch,
		EventWake,
	}, rec.kinds())
}

func TestSleepZeroYields(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{})
	bootAll(t, h, k)
	sys(t, h, 0, SysFork, 0)

	sys(t, h, 0, SysSleep, 0)
	idle, _ := k.Lookup(0)
	assert.Equal(t, TaskRunnable, idle.State)
	assert.Equal(t, TaskID(1), k.Core(0).Current())
}

func TestCreateOutOfMemoryHalts(t *testing.T) {
	h := hal.NewHost(hal.HostConfig{Cores: 1, Frames: 25, Out: io.Discard})
	k, err := New(h, Config{})
	require.NoError(t, err)

	var calls int
	var got PanicInfo
	k.SetPanicHandler(func(info PanicInfo) {
		calls++
		got = info
	})
	bootAll(t, h, k)
	require.False(t, k.InPanicMode())

	halt := catchHalt(func() { sys(t, h, 0, SysFork, 0) })
	require.NotNil(t, halt)
	assert.Equal(t, 0, halt.Core)
	assert.True(t, k.InPanicMode())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, got.Core)
	assert.Equal(t, TaskID(0), got.TaskID)

	halt = catchHalt(func() { sys(t, h, 0, SysFork, 0) })
	require.NotNil(t, halt)
	assert.Equal(t, 1, calls, "panic handler runs once")

	var target *Halt
	assert.True(t, errors.As(error(halt), &target))
}

func TestCoresRunConcurrently(t *testing.T) {
	h, k := newTestKernel(t, 2, Config{Quantum: 3})
	bootAll(t, h, k)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for core := 0; core < 2; core++ {
		core := core
		idle := k.Core(core).Runqueue().Tasks()[0]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				tf, _ := h.Frame(core)
				vector := VectorTimer
				switch {
				case i%7 == 0:
					tf.Regs.EAX = SysFork
					vector = VectorSyscall
				case i%11 == 0 && k.Core(core).Current() != idle:
					tf.Regs.EAX = SysKill
					tf.Regs.EDX = uint32(k.Core(core).Current())
					vector = VectorSyscall
				}
				if _, err := h.Raise(core, vector, &tf); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	queued := 0
	for _, st := range k.Status() {
		for _, ts := range st.Queue {
			require.NotEqual(t, TaskFree, ts.State, "task %d queued on core %d", ts.ID, st.ID)
		}
		queued += len(st.Queue)
	}
	assert.Equal(t, k.Live(), queued)
	assert.LessOrEqual(t, k.Live(), k.Config().MaxTasks)
}
