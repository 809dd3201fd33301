package hal

import (
	"fmt"
	"sync"
)

const hostFramesDefault = 2048

type hostFrame struct {
	data []byte
	refs int
}

type hostMapping struct {
	frame  uint32
	perm   Perm
	shared bool
}

type hostSpace struct {
	tables map[uint32]uint32
	pages  map[uint32]hostMapping
}

// hostMMU simulates two-level paging over a bounded pool of frames.
// Address space handles are the frame numbers of their roots.
type hostMMU struct {
	mu       sync.Mutex
	pageSize uint32
	limit    int
	used     int
	next     uint32
	frames   map[uint32]*hostFrame
	spaces   map[AddressSpace]*hostSpace
	kernel   AddressSpace
	active   []AddressSpace
	image    map[uint32]uint32
}

func newHostMMU(cores, frames int, layout Layout, img Image) *hostMMU {
	if frames <= 0 {
		frames = hostFramesDefault
	}
	m := &hostMMU{
		pageSize: layout.PageSize,
		limit:    frames,
		next:     1,
		frames:   make(map[uint32]*hostFrame),
		spaces:   make(map[AddressSpace]*hostSpace),
		active:   make([]AddressSpace, cores),
		image:    make(map[uint32]uint32),
	}
	root, err := m.allocFrame()
	if err != nil {
		panic("hal: no frame for the kernel address space")
	}
	m.kernel = AddressSpace(root)
	m.spaces[m.kernel] = &hostSpace{tables: map[uint32]uint32{}, pages: map[uint32]hostMapping{}}
	for i := range m.active {
		m.active[i] = m.kernel
	}
	for _, r := range img.Regions() {
		for va := m.roundDown(r.Start); va < m.roundUp(r.Start+r.Size); va += m.pageSize {
			if _, ok := m.image[va]; ok {
				continue
			}
			f, err := m.allocFrame()
			if err != nil {
				panic("hal: no frames for the program image")
			}
			m.image[va] = f
		}
	}
	return m
}

func (m *hostMMU) roundDown(va uint32) uint32 { return va &^ (m.pageSize - 1) }
func (m *hostMMU) roundUp(va uint32) uint32 {
	return (va + m.pageSize - 1) &^ (m.pageSize - 1)
}

func (m *hostMMU) allocFrame() (uint32, error) {
	if m.used >= m.limit {
		return 0, ErrNoMemory
	}
	id := m.next
	m.next++
	m.frames[id] = &hostFrame{data: make([]byte, m.pageSize), refs: 1}
	m.used++
	return id, nil
}

func (m *hostMMU) putFrame(id uint32) {
	f, ok := m.frames[id]
	if !ok {
		return
	}
	f.refs--
	if f.refs > 0 {
		return
	}
	delete(m.frames, id)
	m.used--
}

func (m *hostMMU) space(as AddressSpace) (*hostSpace, error) {
	sp, ok := m.spaces[as]
	if !ok {
		return nil, fmt.Errorf("space %#x: %w", as, ErrBadSpace)
	}
	return sp, nil
}

func (m *hostMMU) checkInactive(as AddressSpace) error {
	for core, a := range m.active {
		if a == as {
			return fmt.Errorf("space %#x on core %d: %w", as, core, ErrSpaceActive)
		}
	}
	return nil
}

func (m *hostMMU) table(sp *hostSpace, va uint32) error {
	pdx := va >> 22
	if _, ok := sp.tables[pdx]; ok {
		return nil
	}
	f, err := m.allocFrame()
	if err != nil {
		return err
	}
	sp.tables[pdx] = f
	return nil
}

func (m *hostMMU) KernelSpace() AddressSpace { return m.kernel }

func (m *hostMMU) NewSpace() (AddressSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, err := m.allocFrame()
	if err != nil {
		return 0, err
	}
	as := AddressSpace(root)
	m.spaces[as] = &hostSpace{tables: map[uint32]uint32{}, pages: map[uint32]hostMapping{}}
	return as, nil
}

func (m *hostMMU) MapPage(as AddressSpace, va uint32, perm Perm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, err := m.space(as)
	if err != nil {
		return err
	}
	va = m.roundDown(va)
	if err := m.table(sp, va); err != nil {
		return fmt.Errorf("map %#x: %w", va, err)
	}
	f, err := m.allocFrame()
	if err != nil {
		return fmt.Errorf("map %#x: %w", va, err)
	}
	if old, ok := sp.pages[va]; ok {
		m.putFrame(old.frame)
	}
	sp.pages[va] = hostMapping{frame: f, perm: perm | PermPresent}
	return nil
}

func (m *hostMMU) MapShared(as AddressSpace, va, size uint32, perm Perm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, err := m.space(as)
	if err != nil {
		return err
	}
	for p := m.roundDown(va); p < m.roundUp(va+size); p += m.pageSize {
		f, ok := m.image[p]
		if !ok {
			return fmt.Errorf("image page %#x: %w", p, ErrNotMapped)
		}
		if err := m.table(sp, p); err != nil {
			return fmt.Errorf("map image %#x: %w", p, err)
		}
		if old, ok := sp.pages[p]; ok {
			m.putFrame(old.frame)
		}
		m.frames[f].refs++
		sp.pages[p] = hostMapping{frame: f, perm: perm | PermPresent, shared: true}
	}
	return nil
}

func (m *hostMMU) UnmapPage(as AddressSpace, va uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, err := m.space(as)
	if err != nil {
		return err
	}
	if err := m.checkInactive(as); err != nil {
		return err
	}
	va = m.roundDown(va)
	pm, ok := sp.pages[va]
	if !ok {
		return fmt.Errorf("unmap %#x: %w", va, ErrNotMapped)
	}
	delete(sp.pages, va)
	m.putFrame(pm.frame)
	return nil
}

func (m *hostMMU) ReleaseTables(as AddressSpace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, err := m.space(as)
	if err != nil {
		return err
	}
	if err := m.checkInactive(as); err != nil {
		return err
	}
	m.releaseTables(sp)
	return nil
}

func (m *hostMMU) releaseTables(sp *hostSpace) {
	for va, pm := range sp.pages {
		delete(sp.pages, va)
		m.putFrame(pm.frame)
	}
	for pdx, f := range sp.tables {
		delete(sp.tables, pdx)
		m.putFrame(f)
	}
}

func (m *hostMMU) DestroySpace(as AddressSpace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if as == m.kernel {
		return fmt.Errorf("destroy kernel space: %w", ErrBadSpace)
	}
	sp, err := m.space(as)
	if err != nil {
		return err
	}
	if err := m.checkInactive(as); err != nil {
		return err
	}
	m.releaseTables(sp)
	delete(m.spaces, as)
	m.putFrame(uint32(as))
	return nil
}

func (m *hostMMU) Switch(core int, as AddressSpace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[core] = as
}

func (m *hostMMU) Active(core int) AddressSpace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[core]
}

func (m *hostMMU) KernelView(core int, as AddressSpace, va uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[core] != m.kernel {
		return nil, ErrNotKernelSpace
	}
	sp, err := m.space(as)
	if err != nil {
		return nil, err
	}
	pm, ok := sp.pages[m.roundDown(va)]
	if !ok {
		return nil, fmt.Errorf("view %#x: %w", va, ErrNotMapped)
	}
	return m.frames[pm.frame].data, nil
}

// FreeFrames returns the number of unallocated frames.
func (m *hostMMU) FreeFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit - m.used
}

// Mapping reports the permissions of the page at va in as.
func (m *hostMMU) Mapping(as AddressSpace, va uint32) (Perm, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.spaces[as]
	if !ok {
		return 0, false
	}
	pm, ok := sp.pages[m.roundDown(va)]
	return pm.perm, ok
}

// Spaces returns the number of live address spaces, the kernel's included.
func (m *hostMMU) Spaces() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.spaces)
}
