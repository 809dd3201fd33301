package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// HostConfig sizes the simulated machine.
type HostConfig struct {
	Cores  int
	Frames int
	Width  int
	Height int
	Layout Layout
	Image  Image
	Out    io.Writer
}

// Host is the hosted machine: every collaborator of the kernel backed by
// in-process state.
type Host struct {
	logger *hostLogger
	fb     *hostFramebuffer
	cpu    *hostCPU
	mmu    *hostMMU
	intr   *hostInterrupts
	timer  *hostTimer
	layout Layout
	image  Image
}

// NewHost returns a host machine sized by cfg.
func NewHost(cfg HostConfig) *Host {
	if cfg.Cores <= 0 {
		cfg.Cores = 1
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 240
	}
	if cfg.Layout.PageSize == 0 {
		cfg.Layout = DefaultLayout()
	}
	if cfg.Image.UserEntry == 0 {
		cfg.Image = DefaultImage()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Host{
		logger: &hostLogger{w: cfg.Out},
		fb:     newHostFramebuffer(cfg.Width, cfg.Height),
		cpu:    newHostCPU(cfg.Cores),
		mmu:    newHostMMU(cfg.Cores, cfg.Frames, cfg.Layout, cfg.Image),
		intr:   newHostInterrupts(cfg.Cores),
		timer:  &hostTimer{},
		layout: cfg.Layout,
		image:  cfg.Image,
	}
}

func (h *Host) Logger() Logger         { return h.logger }
func (h *Host) Display() Display       { return hostDisplay{fb: h.fb} }
func (h *Host) CPU() CPU               { return h.cpu }
func (h *Host) MMU() MMU               { return h.mmu }
func (h *Host) Interrupts() Interrupts { return h.intr }
func (h *Host) Timer() Timer           { return h.timer }
func (h *Host) Layout() Layout         { return h.layout }
func (h *Host) Image() Image           { return h.image }

// Presents returns how many frames have been presented.
func (h *Host) Presents() uint64 { return h.fb.presents.Load() }

// PixelRGB returns the framebuffer color at (x, y).
func (h *Host) PixelRGB(x, y int) (r, g, b uint8) { return h.fb.pixelRGB(x, y) }

// Frame returns the context core is executing and whether it has booted.
func (h *Host) Frame(core int) (Trapframe, bool) { return h.cpu.Frame(core) }

// Registers returns the descriptor registers last loaded on core.
func (h *Host) Registers(core int) (gdt []uint64, ldt, tr uint16) { return h.cpu.Registers(core) }

// EOIs returns how many interrupts core has acknowledged.
func (h *Host) EOIs(core int) uint64 { return h.intr.EOIs(core) }

// TimerHz returns the tick rate programmed into the timer.
func (h *Host) TimerHz() int { return h.timer.Hz() }

// FreeFrames returns the number of unallocated physical frames.
func (h *Host) FreeFrames() int { return h.mmu.FreeFrames() }

// Mapping reports the permissions of the page at va in as.
func (h *Host) Mapping(as AddressSpace, va uint32) (Perm, bool) { return h.mmu.Mapping(as, va) }

// Spaces returns the number of live address spaces.
func (h *Host) Spaces() int { return h.mmu.Spaces() }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
