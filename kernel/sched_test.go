package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreemptionRoundRobin(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{Quantum: 2})
	bootAll(t, h, k)
	sys(t, h, 0, SysFork, 0)
	sys(t, h, 0, SysFork, 0)
	require.Equal(t, []TaskID{0, 1, 2}, k.Core(0).Runqueue().Tasks())

	var order []TaskID
	for i := 0; i < 8; i++ {
		tick(t, h, 0)
		order = append(order, k.Core(0).Current())
	}
	assert.Equal(t, []TaskID{0, 1, 1, 2, 2, 1, 1, 2}, order)

	info, _ := k.Lookup(0)
	assert.Equal(t, TaskRunnable, info.State, "idle stays out while others are runnable")
}

func TestQuantumDecrementsOncePerTick(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{Quantum: 4})
	bootAll(t, h, k)
	sys(t, h, 0, SysFork, 0)

	for want := 3; want >= 1; want-- {
		tick(t, h, 0)
		info, _ := k.Lookup(0)
		require.Equal(t, want, info.Quantum)
		require.Equal(t, TaskRunning, info.State)
	}

	tick(t, h, 0)
	idle, _ := k.Lookup(0)
	assert.Equal(t, TaskRunnable, idle.State)
	assert.Equal(t, 4, idle.Quantum, "quantum reset on preemption")
	assert.Equal(t, TaskID(1), k.Core(0).Current())
}

func TestIdleFallbackWhenNothingRunnable(t *testing.T) {
	h, k := newTestKernel(t, 2, Config{Quantum: 1})
	bootAll(t, h, k)

	for i := 0; i < 5; i++ {
		tf := tick(t, h, 1)
		require.Equal(t, TaskID(1), k.Core(1).Current())
		require.Equal(t, h.Image().IdleEntry, tf.EIP)
	}
}

func TestPreemptResumesSavedContext(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{Quantum: 1})
	bootAll(t, h, k)
	sys(t, h, 0, SysFork, 0)

	// Idle is interrupted at a new instruction; the child picks up where the
	// fork left it.
	tf, _ := h.Frame(0)
	tf.EIP += 0x40
	tf.Regs.EBX = 0xfeed
	out, err := h.Raise(0, VectorTimer, &tf)
	require.NoError(t, err)

	child, _ := k.Lookup(1)
	assert.Equal(t, child.TF, out)
	assert.Equal(t, uint32(0), out.Regs.EAX)

	idle, _ := k.Lookup(0)
	assert.Equal(t, tf.EIP, idle.TF.EIP)
	assert.Equal(t, uint32(0xfeed), idle.TF.Regs.EBX)
	assert.Equal(t, child.Space, h.MMU().Active(0))
}

func TestVoluntaryYield(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{})
	bootAll(t, h, k)
	sys(t, h, 0, SysFork, 0)

	sys(t, h, 0, SysYield, 0)
	assert.Equal(t, TaskID(1), k.Core(0).Current())
	sys(t, h, 0, SysYield, 0)
	assert.Equal(t, TaskID(0), k.Core(0).Current(), "a lone yielding task steps aside for idle")

	info, _ := k.Lookup(1)
	assert.Equal(t, TaskRunnable, info.State)

	sys(t, h, 0, SysYield, 0)
	assert.Equal(t, TaskID(1), k.Core(0).Current())
}

func TestScenarioQuantumFive(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{MaxTasks: 2, Quantum: 5})
	bootAll(t, h, k)
	rq := k.Core(0).Runqueue()

	a := TaskID(sys(t, h, 0, SysSpawn, 0).Regs.EAX)
	require.Equal(t, TaskID(1), a)
	sys(t, h, 0, SysYield, 0)
	require.Equal(t, a, k.Core(0).Current())

	for i := 0; i < 4; i++ {
		tick(t, h, 0)
		require.Equal(t, a, k.Core(0).Current())
	}
	tick(t, h, 0)
	info, _ := k.Lookup(a)
	assert.Equal(t, TaskRunnable, info.State)
	assert.Equal(t, TaskID(0), k.Core(0).Current())

	out := sys(t, h, 0, SysKill, uint32(a))
	assert.Equal(t, uint32(0), out.Regs.EAX)
	assert.Equal(t, 1, rq.Len())
	info, _ = k.Lookup(a)
	assert.Equal(t, TaskFree, info.State)

	again := TaskID(sys(t, h, 0, SysSpawn, 0).Regs.EAX)
	assert.Equal(t, a, again, "slot reused")
}
