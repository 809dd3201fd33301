package kernel

// EventKind classifies an Event.
type EventKind uint8

const (
	EventCreate EventKind = iota + 1
	EventFork
	EventSpawn
	EventKill
	EventSwitch
	EventPreempt
	EventSleep
	EventWake
)

func (e EventKind) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventFork:
		return "fork"
	case EventSpawn:
		return "spawn"
	case EventKill:
		return "kill"
	case EventSwitch:
		return "switch"
	case EventPreempt:
		return "preempt"
	case EventSleep:
		return "sleep"
	case EventWake:
		return "wake"
	default:
		return "unknown"
	}
}

// Event is a task lifecycle or scheduling transition.
type Event struct {
	Kind EventKind
	Core int
	Task TaskID
	// Other is the parent for create/fork/spawn and the previous task for
	// switch.
	Other TaskID
	// Target is the core a forked or spawned task was queued on.
	Target int
	Tick   uint64
}

// Observer receives events on the core that caused them. Implementations
// must be safe for concurrent use and must not call back into the kernel.
type Observer interface {
	Observe(Event)
}

// SetObserver installs o. It must be called before any core starts.
func (k *Kernel) SetObserver(o Observer) { k.obs = o }

func (k *Kernel) emit(ev Event) {
	if k.obs == nil {
		return
	}
	ev.Tick = k.ticks.Load()
	k.obs.Observe(ev)
}
