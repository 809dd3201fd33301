package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyscallGetters(t *testing.T) {
	h, k := newTestKernel(t, 2, Config{})
	bootAll(t, h, k)

	assert.Equal(t, uint32(0), sys(t, h, 0, SysGetPID, 0).Regs.EAX)
	assert.Equal(t, uint32(1), sys(t, h, 1, SysGetPID, 0).Regs.EAX)
	assert.Equal(t, uint32(0), sys(t, h, 0, SysGetCID, 0).Regs.EAX)
	assert.Equal(t, uint32(1), sys(t, h, 1, SysGetCID, 0).Regs.EAX)
}

func TestSyscallUnknown(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{})
	bootAll(t, h, k)

	out := sys(t, h, 0, 0x99, 0)
	assert.Equal(t, SysFailed, out.Regs.EAX)
	assert.Equal(t, TaskID(0), k.Core(0).Current())
}

func TestSyscallSpawnEntry(t *testing.T) {
	h, k := newTestKernel(t, 2, Config{})
	bootAll(t, h, k)

	id := TaskID(sys(t, h, 0, SysSpawn, 0x00801000).Regs.EAX)
	info, ok := k.Lookup(id)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x00801000), info.TF.EIP)
	assert.Equal(t, TaskID(0), info.ParentID)
	assert.True(t, k.Core(1).Runqueue().Contains(id))

	id = TaskID(sys(t, h, 0, SysSpawn, 0).Regs.EAX)
	info, _ = k.Lookup(id)
	assert.Equal(t, h.Image().UserEntry, info.TF.EIP)
	assert.Equal(t, h.Layout().UserStackTop-h.Layout().PageSize, info.TF.ESP)
}

func TestSyscallPreservesOtherRegisters(t *testing.T) {
	h, k := newTestKernel(t, 1, Config{})
	bootAll(t, h, k)

	tf, _ := h.Frame(0)
	tf.Regs.EAX = SysGetCID
	tf.Regs.EBX = 0xabcd
	tf.EIP = 0x00800100
	out, err := h.Raise(0, VectorSyscall, &tf)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0xabcd), out.Regs.EBX)
	assert.Equal(t, uint32(0x00800100), out.EIP)
	assert.Equal(t, uint32(VectorSyscall), out.TrapNo)
}
