package kernel

import "unsafe"

// Segment selectors. Kernel and user segments are identical except for the
// descriptor privilege level: loading SS requires CPL == DPL, so each
// privilege level needs its own pair.
const (
	GDKernelText uint16 = 0x08
	GDKernelData uint16 = 0x10
	GDUserText   uint16 = 0x18
	GDUserData   uint16 = 0x20
	GDTSS0       uint16 = 0x28

	// RPLUser is the requested privilege level of user selectors.
	RPLUser uint16 = 3
)

// Segment type bits.
const (
	STAExec     uint8 = 0x8 // executable segment
	STAWrite    uint8 = 0x2 // writeable (non-executable segments)
	STARead     uint8 = 0x2 // readable (executable segments)
	STST32Avail uint8 = 0x9 // available 32-bit TSS
)

// Segdesc is an x86 segment descriptor.
type Segdesc struct {
	LimitLow  uint16 // low bits of segment limit
	BaseLow   uint16 // low bits of segment base address
	BaseMid   uint8  // middle bits of segment base address
	Type      uint8  // segment type (see STA_ constants)
	S         uint8  // 0 = system, 1 = application
	DPL       uint8  // descriptor privilege level
	P         uint8  // present
	LimitHigh uint8  // high bits of segment limit
	AVL       uint8  // unused (available for software use)
	Rsv1      uint8  // reserved
	DB        uint8  // 0 = 16-bit segment, 1 = 32-bit segment
	G         uint8  // granularity: limit scaled by 4K when set
	BaseHigh  uint8  // high bits of segment base address
}

// Seg builds a page-granular 32-bit descriptor.
func Seg(typ uint8, base, lim uint32, dpl uint8) Segdesc {
	return Segdesc{
		LimitLow:  uint16((lim >> 12) & 0xffff),
		BaseLow:   uint16(base & 0xffff),
		BaseMid:   uint8((base >> 16) & 0xff),
		Type:      typ,
		S:         1,
		DPL:       dpl,
		P:         1,
		LimitHigh: uint8(lim >> 28),
		DB:        1,
		G:         1,
		BaseHigh:  uint8(base >> 24),
	}
}

// Seg16 builds a byte-granular descriptor.
func Seg16(typ uint8, base, lim uint32, dpl uint8) Segdesc {
	return Segdesc{
		LimitLow:  uint16(lim & 0xffff),
		BaseLow:   uint16(base & 0xffff),
		BaseMid:   uint8((base >> 16) & 0xff),
		Type:      typ,
		S:         1,
		DPL:       dpl,
		P:         1,
		LimitHigh: uint8((lim >> 16) & 0xf),
		DB:        1,
		BaseHigh:  uint8(base >> 24),
	}
}

// Encode packs d into its 8-byte hardware form.
func (d Segdesc) Encode() uint64 {
	v := uint64(d.LimitLow)
	v |= uint64(d.BaseLow) << 16
	v |= uint64(d.BaseMid) << 32
	v |= uint64(d.Type&0xf) << 40
	v |= uint64(d.S&1) << 44
	v |= uint64(d.DPL&3) << 45
	v |= uint64(d.P&1) << 47
	v |= uint64(d.LimitHigh&0xf) << 48
	v |= uint64(d.AVL&1) << 52
	v |= uint64(d.Rsv1&1) << 53
	v |= uint64(d.DB&1) << 54
	v |= uint64(d.G&1) << 55
	v |= uint64(d.BaseHigh) << 56
	return v
}

// DecodeSegdesc unpacks an 8-byte descriptor.
func DecodeSegdesc(v uint64) Segdesc {
	return Segdesc{
		LimitLow:  uint16(v),
		BaseLow:   uint16(v >> 16),
		BaseMid:   uint8(v >> 32),
		Type:      uint8(v>>40) & 0xf,
		S:         uint8(v>>44) & 1,
		DPL:       uint8(v>>45) & 3,
		P:         uint8(v>>47) & 1,
		LimitHigh: uint8(v>>48) & 0xf,
		AVL:       uint8(v>>52) & 1,
		Rsv1:      uint8(v>>53) & 1,
		DB:        uint8(v>>54) & 1,
		G:         uint8(v>>55) & 1,
		BaseHigh:  uint8(v >> 56),
	}
}

// Base returns the segment base address.
func (d Segdesc) Base() uint32 {
	return uint32(d.BaseLow) | uint32(d.BaseMid)<<16 | uint32(d.BaseHigh)<<24
}

// Limit returns the raw 20-bit limit field.
func (d Segdesc) Limit() uint32 {
	return uint32(d.LimitLow) | uint32(d.LimitHigh)<<16
}

// TSS is the 32-bit task-state segment. Only the ring 0 stack and the user
// fs/gs selectors are used: the hardware reads ESP0/SS0 on a privilege
// transition into the kernel.
type TSS struct {
	Link   uint32
	ESP0   uint32
	SS0    uint16
	_      uint16
	ESP1   uint32
	SS1    uint16
	_      uint16
	ESP2   uint32
	SS2    uint16
	_      uint16
	CR3    uint32
	EIP    uint32
	EFlags uint32
	EAX    uint32
	ECX    uint32
	EDX    uint32
	EBX    uint32
	ESP    uint32
	EBP    uint32
	ESI    uint32
	EDI    uint32
	ES     uint16
	_      uint16
	CS     uint16
	_      uint16
	SS     uint16
	_      uint16
	DS     uint16
	_      uint16
	FS     uint16
	_      uint16
	GS     uint16
	_      uint16
	LDT    uint16
	_      uint16
	T      uint16 // trap on task switch
	IOMB   uint16 // i/o map base address
}

// TSSSize is the hardware size of a TSS.
const TSSSize = uint32(unsafe.Sizeof(TSS{}))

// newGDT returns the descriptor table: null, kernel text/data, user
// text/data, then one TSS slot per core filled in by InitCore.
func newGDT(cores int) []uint64 {
	gdt := make([]uint64, int(GDTSS0>>3)+cores)
	gdt[GDKernelText>>3] = Seg(STAExec|STARead, 0, 0xffffffff, 0).Encode()
	gdt[GDKernelData>>3] = Seg(STAWrite, 0, 0xffffffff, 0).Encode()
	gdt[GDUserText>>3] = Seg(STAExec|STARead, 0, 0xffffffff, 3).Encode()
	gdt[GDUserData>>3] = Seg(STAWrite, 0, 0xffffffff, 3).Encode()
	return gdt
}

// GDT returns a copy of the descriptor table.
func (k *Kernel) GDT() []uint64 {
	return append([]uint64(nil), k.gdt...)
}

// tssSelector returns the selector of core's TSS descriptor.
func tssSelector(core int) uint16 {
	return GDTSS0 + uint16(core)<<3
}
