package hal

// PushRegs is the general register block in pushal order.
type PushRegs struct {
	EDI  uint32
	ESI  uint32
	EBP  uint32
	OESP uint32 // useless, pushal stores the pre-push esp here
	EBX  uint32
	EDX  uint32
	ECX  uint32
	EAX  uint32
}

// Trapframe is the execution context saved on trap entry and loaded by
// CPU.Restore.
type Trapframe struct {
	Regs   PushRegs
	ES     uint16
	DS     uint16
	TrapNo uint32
	Err    uint32
	EIP    uint32
	CS     uint16
	EFlags uint32
	ESP    uint32
	SS     uint16
}

// Layout describes the fixed virtual memory layout.
type Layout struct {
	PageSize        uint32
	UserStackTop    uint32
	UserStackSize   uint32
	KernelStackTop  uint32
	KernelStackSize uint32
	KernelStackGap  uint32
}

// DefaultLayout is the 32-bit layout: user stack below UTOP, per-core kernel
// stacks below KERNBASE separated by guard gaps.
func DefaultLayout() Layout {
	const pg = 4096
	return Layout{
		PageSize:        pg,
		UserStackTop:    0xeebfe000,
		UserStackSize:   10 * pg,
		KernelStackTop:  0xf0000000,
		KernelStackSize: 8 * pg,
		KernelStackGap:  8 * pg,
	}
}

// StackBase returns the lowest address of the user stack.
func (l Layout) StackBase() uint32 { return l.UserStackTop - l.UserStackSize }

// Region is a contiguous range of the program image.
type Region struct {
	Start uint32
	Size  uint32
}

// Image is the single statically linked program every task runs.
type Image struct {
	Text      Region
	Data      Region
	BSS       Region
	ROData    Region
	UserEntry uint32
	IdleEntry uint32
}

// Regions returns the sections in mapping order.
func (im Image) Regions() []Region {
	return []Region{im.Text, im.Data, im.BSS, im.ROData}
}

// DefaultImage is the link layout used by the host build.
func DefaultImage() Image {
	return Image{
		Text:      Region{Start: 0x00800000, Size: 0x3000},
		Data:      Region{Start: 0x00803000, Size: 0x0800},
		BSS:       Region{Start: 0x00804000, Size: 0x1000},
		ROData:    Region{Start: 0x00805000, Size: 0x0400},
		UserEntry: 0x00800020,
		IdleEntry: 0x00802000,
	}
}
