package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// AddressSpace is the handle of a page-table root. Zero is never a valid space.
type AddressSpace uint32

// Perm is a set of page permissions.
type Perm uint8

const (
	PermPresent Perm = 1 << iota
	PermWrite
	PermUser
)

var (
	ErrNoMemory       = errors.New("out of physical memory")
	ErrBadSpace       = errors.New("unknown address space")
	ErrSpaceActive    = errors.New("address space is active on a core")
	ErrNotKernelSpace = errors.New("core is not running on the kernel address space")
	ErrNotMapped      = errors.New("page not mapped")
)

// MMU is the physical/virtual memory collaborator of the task layer.
//
// All addresses are page aligned unless noted otherwise.
type MMU interface {
	// KernelSpace returns the kernel's own address space.
	KernelSpace() AddressSpace
	// NewSpace creates an address space holding the kernel mappings.
	NewSpace() (AddressSpace, error)
	// MapPage allocates a zeroed frame and maps it at va.
	MapPage(as AddressSpace, va uint32, perm Perm) error
	// MapShared maps [va, va+size) of the shared program image into as.
	MapShared(as AddressSpace, va, size uint32, perm Perm) error
	// UnmapPage removes the mapping at va and frees its frame if unused.
	UnmapPage(as AddressSpace, va uint32) error
	// ReleaseTables frees the page tables of as and whatever they still map.
	ReleaseTables(as AddressSpace) error
	// DestroySpace frees the root of as.
	DestroySpace(as AddressSpace) error
	// Switch makes as the active space of core.
	Switch(core int, as AddressSpace)
	// Active returns the active space of core.
	Active(core int) AddressSpace
	// KernelView returns the kernel-visible bytes of the page mapped at va in
	// as. The core must be running on the kernel address space.
	KernelView(core int, as AddressSpace, va uint32) ([]byte, error)
}

// TrapHandler is invoked on the trapping core with the interrupted frame.
type TrapHandler func(core int, vector uint8, tf *Trapframe)

// Interrupts is the interrupt controller.
type Interrupts interface {
	Register(vector uint8, h TrapHandler)
	// EOI acknowledges the interrupt being serviced on core.
	EOI(core int)
}

// Timer is the periodic tick source.
type Timer interface {
	SetDivisor(div uint16)
	Divisor() uint16
}

// CPU exposes the privileged per-core operations.
type CPU interface {
	Count() int
	LoadGDT(core int, gdt []uint64)
	LoadLDT(core int, sel uint16)
	LoadTR(core int, sel uint16)
	// Restore loads tf on core and continues execution there. It does not
	// return to its caller.
	Restore(core int, tf *Trapframe)
}

// HAL provides the only contact point between the kernel and the machine.
type HAL interface {
	Logger() Logger
	Display() Display
	CPU() CPU
	MMU() MMU
	Interrupts() Interrupts
	Timer() Timer
	Layout() Layout
	Image() Image
}
