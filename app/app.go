// Package app wires the host machine, the kernel and the emulated program
// image into a runnable system.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mpkern/hal"
	"mpkern/internal/buildinfo"
	"mpkern/internal/config"
	"mpkern/internal/tracing"
	"mpkern/kernel"
)

// ErrHalted is returned by Step once a core has halted.
var ErrHalted = errors.New("system halted")

// System is a booted machine. Step is not safe for concurrent use; the
// console may be used from any goroutine.
type System struct {
	cfg     config.Config
	host    *hal.Host
	k       *kernel.Kernel
	log     hal.Logger
	prog    *program
	inbox   []Mailbox
	stats   *eventStats
	display *fbDisplay
	session uuid.UUID

	ctx  context.Context
	span *tracing.Span

	steps  uint64
	halted atomic.Pointer[kernel.Halt]
}

// New builds the machine described by cfg. Log lines go to out.
func New(cfg config.Config, out io.Writer) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := hal.NewHost(hal.HostConfig{
		Cores:  cfg.Cores,
		Frames: cfg.Frames,
		Width:  cfg.Display.Width,
		Height: cfg.Display.Height,
		Out:    out,
	})
	k, err := kernel.New(h, kernel.Config{MaxTasks: cfg.MaxTasks, Quantum: cfg.Quantum})
	if err != nil {
		return nil, err
	}

	s := &System{
		cfg:     cfg,
		host:    h,
		k:       k,
		log:     h.Logger(),
		prog:    newProgram(h.Image(), cfg.Program),
		inbox:   make([]Mailbox, cfg.Cores),
		stats:   &eventStats{},
		session: uuid.New(),
	}
	if disp := h.Display(); disp != nil && disp.Framebuffer() != nil {
		s.display = newFBDisplay(disp.Framebuffer())
	}

	s.ctx, s.span = tracing.StartSpan(context.Background(), "session")
	s.span.WithAttributes(map[string]string{
		"session": s.session.String(),
		"version": buildinfo.Short(),
		"cores":   fmt.Sprint(cfg.Cores),
	})
	k.SetObserver(observers{s.stats, spanObserver{span: s.span}})
	installPanicHandler(h, k, s.session.String())
	return s, nil
}

// Kernel returns the task layer.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Host returns the simulated machine.
func (s *System) Host() *hal.Host { return s.host }

// Session returns the id of this boot.
func (s *System) Session() uuid.UUID { return s.session }

// Steps returns the number of completed ticks.
func (s *System) Steps() uint64 { return s.steps }

func (s *System) logf(format string, args ...any) {
	s.log.WriteLineString(fmt.Sprintf(format, args...))
}

// Boot programs the timer and brings up every core.
func (s *System) Boot() (err error) {
	_, span := tracing.StartSpan(s.ctx, "boot")
	defer func() { tracing.EndSpan(span, err) }()

	s.logf("%s", buildinfo.Banner(s.session.String()))
	if err := s.k.SetTimer(s.cfg.Hz); err != nil {
		return err
	}
	for core := 0; core < s.k.Cores(); core++ {
		if err := s.guard(func() error {
			if _, err := s.k.InitCore(core); err != nil {
				return err
			}
			_, err := s.host.Enter(core, func() { s.k.Start(core) })
			return err
		}); err != nil {
			return fmt.Errorf("boot core %d: %w", core, err)
		}
	}
	s.render()
	return nil
}

// Shutdown ends the session span.
func (s *System) Shutdown() {
	var err error
	if h := s.halted.Load(); h != nil {
		err = h
	}
	tracing.EndSpan(s.span, err)
}

// Step delivers one timer tick to every core and waits for all of them.
// Before its tick each core runs one step of the task it is executing, which
// may make a system call.
func (s *System) Step() error {
	if h := s.halted.Load(); h != nil {
		return fmt.Errorf("%w: %v", ErrHalted, h)
	}
	var g errgroup.Group
	for core := 0; core < s.k.Cores(); core++ {
		core := core
		g.Go(func() error { return s.stepCore(core) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.steps++
	if r := s.cfg.Display.Refresh; r > 0 && s.steps%uint64(r) == 0 {
		s.render()
	}
	return nil
}

func (s *System) stepCore(core int) error {
	return s.guard(func() error {
		tf, ok := s.host.Frame(core)
		if !ok {
			return fmt.Errorf("core %d: not booted", core)
		}

		if s.prog.step(&tf) {
			next, err := s.host.Raise(core, kernel.VectorSyscall, &tf)
			if err != nil {
				return err
			}
			tf = next
		} else if req, ok := s.inbox[core].TryRecv(); ok {
			next, err := s.inject(core, req, tf)
			if err != nil {
				return err
			}
			tf = next
		}

		_, err := s.host.Raise(core, kernel.VectorTimer, &tf)
		return err
	})
}

// inject makes req as a system call of the task running on core.
func (s *System) inject(core int, req request, tf hal.Trapframe) (hal.Trapframe, error) {
	caller := s.k.Core(core).Current()
	call(&tf, req.num, req.arg)
	next, err := s.host.Raise(core, kernel.VectorSyscall, &tf)
	if err != nil {
		return next, err
	}
	name := syscallName(req.num)
	switch req.num {
	case kernel.SysFork, kernel.SysSpawn:
		if next.Regs.EAX == kernel.SysFailed {
			s.logf("console: core %d task %d %s failed", core, caller, name)
		} else {
			s.logf("console: core %d task %d %s -> task %d", core, caller, name, next.Regs.EAX)
		}
	case kernel.SysKill:
		if info, _ := s.k.Lookup(kernel.TaskID(int32(req.arg))); info.State == kernel.TaskFree {
			s.logf("console: core %d killed task %d", core, int32(req.arg))
		} else {
			s.logf("console: core %d kill %d refused", core, int32(req.arg))
		}
	default:
		s.logf("console: core %d task %d %s %d", core, caller, name, req.arg)
	}
	return next, nil
}

// guard turns a halted core into an error.
func (s *System) guard(fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		h, ok := r.(*kernel.Halt)
		if !ok {
			panic(r)
		}
		s.halted.CompareAndSwap(nil, h)
		err = fmt.Errorf("%w: %v", ErrHalted, h)
	}()
	return fn()
}

// Status renders the runqueues one line per core.
func (s *System) Status() []string {
	var lines []string
	for _, cs := range s.k.Status() {
		var b strings.Builder
		fmt.Fprintf(&b, "cpu%d:", cs.ID)
		for _, ts := range cs.Queue {
			mark := " "
			if ts.ID == cs.Current {
				mark = "*"
			}
			fmt.Fprintf(&b, " %s%d%c", mark, ts.ID, stateLetter(ts.State))
		}
		lines = append(lines, b.String())
	}
	return lines
}

func (s *System) render() {
	if s.display == nil || s.halted.Load() != nil {
		return
	}
	lines := []string{
		fmt.Sprintf("mpkern %s  %s", buildinfo.Short(), s.session.String()[:8]),
		fmt.Sprintf("ticks %d  tasks %d/%d  frames %d",
			s.k.Ticks(), s.k.Live(), s.k.Config().MaxTasks, s.host.FreeFrames()),
		fmt.Sprintf("fork %d  kill %d  preempt %d  wake %d",
			s.stats.Count(kernel.EventFork), s.stats.Count(kernel.EventKill),
			s.stats.Count(kernel.EventPreempt), s.stats.Count(kernel.EventWake)),
		"",
	}
	lines = append(lines, s.Status()...)
	if _, err := drawLines(s.display, colorBG, lines); err != nil {
		s.logf("app: render: %v", err)
	}
}

func stateLetter(st kernel.TaskState) byte {
	switch st {
	case kernel.TaskRunning:
		return 'R'
	case kernel.TaskRunnable:
		return 'r'
	case kernel.TaskSleep:
		return 's'
	default:
		return '-'
	}
}

func syscallName(num uint32) string {
	switch num {
	case kernel.SysGetPID:
		return "getpid"
	case kernel.SysGetCID:
		return "getcid"
	case kernel.SysSleep:
		return "sleep"
	case kernel.SysKill:
		return "kill"
	case kernel.SysGetTicks:
		return "getticks"
	case kernel.SysFork:
		return "fork"
	case kernel.SysYield:
		return "yield"
	case kernel.SysSpawn:
		return "spawn"
	default:
		return fmt.Sprintf("call%d", num)
	}
}
