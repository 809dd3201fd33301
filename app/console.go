package app

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/mattn/go-tty"

	"mpkern/kernel"
)

var (
	ErrUsage   = errors.New("usage")
	ErrQuit    = errors.New("quit")
	ErrBusy    = errors.New("core mailbox full")
	errUnknown = errors.New("unknown command")
)

type command struct {
	usage string
	run   func(c *Console, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":  {"help", (*Console).help},
		"ps":    {"ps", (*Console).ps},
		"ticks": {"ticks", (*Console).ticks},
		"stats": {"stats", (*Console).stats},
		"fork":  {"fork <core>", injector(kernel.SysFork, false)},
		"spawn": {"spawn <core>", injector(kernel.SysSpawn, false)},
		"yield": {"yield <core>", injector(kernel.SysYield, false)},
		"kill":  {"kill <core> <task>", injector(kernel.SysKill, true)},
		"sleep": {"sleep <core> <ticks>", injector(kernel.SysSleep, true)},
		"quit":  {"quit", func(*Console, []string) (string, error) { return "", ErrQuit }},
	}
}

// Console executes operator commands against a running system. Task
// commands are queued to the named core and made as system calls by its
// running task on the next tick.
type Console struct {
	sys *System
}

// Console returns the operator console of s.
func (s *System) Console() *Console { return &Console{sys: s} }

// Exec runs one command line.
func (c *Console) Exec(line string) (string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return "", nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return "", fmt.Errorf("%s: %w", args[0], errUnknown)
	}
	return cmd.run(c, args[1:])
}

func (c *Console) help([]string) (string, error) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(commands[name].usage)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func (c *Console) ps([]string) (string, error) {
	var b strings.Builder
	for _, cs := range c.sys.k.Status() {
		for _, ts := range cs.Queue {
			cur := ""
			if ts.ID == cs.Current {
				cur = " *"
			}
			fmt.Fprintf(&b, "cpu%d task %d parent %d %s quantum %d%s\n",
				cs.ID, ts.ID, ts.ParentID, ts.State, ts.Quantum, cur)
		}
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func (c *Console) ticks([]string) (string, error) {
	return strconv.FormatUint(c.sys.k.Ticks(), 10), nil
}

func (c *Console) stats([]string) (string, error) {
	kinds := []kernel.EventKind{
		kernel.EventCreate, kernel.EventFork, kernel.EventSpawn, kernel.EventKill,
		kernel.EventSwitch, kernel.EventPreempt, kernel.EventSleep, kernel.EventWake,
	}
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, c.sys.stats.Count(k)))
	}
	return strings.Join(parts, " "), nil
}

func injector(num uint32, wantArg bool) func(*Console, []string) (string, error) {
	return func(c *Console, args []string) (string, error) {
		want := 1
		if wantArg {
			want = 2
		}
		if len(args) != want {
			return "", fmt.Errorf("%s: %w", syscallName(num), ErrUsage)
		}
		core, err := strconv.Atoi(args[0])
		if err != nil || core < 0 || core >= c.sys.k.Cores() {
			return "", fmt.Errorf("%s: bad core %q: %w", syscallName(num), args[0], ErrUsage)
		}
		req := request{num: num}
		if wantArg {
			n, err := strconv.ParseInt(args[1], 10, 32)
			if err != nil {
				return "", fmt.Errorf("%s: bad argument %q: %w", syscallName(num), args[1], ErrUsage)
			}
			req.arg = uint32(int32(n))
		}
		if num == kernel.SysSpawn {
			req.arg = c.sys.prog.worker
		}
		if !c.sys.inbox[core].TrySend(req) {
			return "", fmt.Errorf("core %d: %w", core, ErrBusy)
		}
		return fmt.Sprintf("queued %s on cpu%d", syscallName(num), core), nil
	}
}

// Serve reads commands from r until EOF or quit, writing results to w.
func (c *Console) Serve(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if done := c.reply(w, line); done {
			return nil
		}
	}
	return nil
}

// reply executes line and prints the result. It reports whether the
// operator asked to quit.
func (c *Console) reply(w io.Writer, line string) bool {
	out, err := c.Exec(line)
	switch {
	case errors.Is(err, ErrQuit):
		return true
	case err != nil:
		fmt.Fprintf(w, "error: %v\n", err)
	case out != "":
		fmt.Fprintln(w, out)
	}
	return false
}

// Interactive runs the console on the controlling terminal until quit.
func (c *Console) Interactive() error {
	t, err := tty.Open()
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer t.Close()

	out := t.Output()
	for {
		fmt.Fprint(out, "mpkern> ")
		line, err := t.ReadString()
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		if c.reply(out, line) {
			return nil
		}
	}
}
