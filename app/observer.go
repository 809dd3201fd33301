package app

import (
	"sync/atomic"

	"mpkern/internal/tracing"
	"mpkern/kernel"
)

// observers fans one event out to several observers.
type observers []kernel.Observer

func (o observers) Observe(ev kernel.Event) {
	for _, x := range o {
		x.Observe(ev)
	}
}

// eventStats counts events by kind.
type eventStats struct {
	counts [16]atomic.Uint64
}

func (s *eventStats) Observe(ev kernel.Event) {
	if int(ev.Kind) < len(s.counts) {
		s.counts[ev.Kind].Add(1)
	}
}

func (s *eventStats) Count(kind kernel.EventKind) uint64 {
	if int(kind) >= len(s.counts) {
		return 0
	}
	return s.counts[kind].Load()
}

// spanObserver records lifecycle events on the session span. Context
// switches are too frequent to be useful there and are skipped.
type spanObserver struct {
	span *tracing.Span
}

func (o spanObserver) Observe(ev kernel.Event) {
	if ev.Kind == kernel.EventSwitch {
		return
	}
	o.span.AddEvent(ev.Kind.String(), map[string]int64{
		"core":   int64(ev.Core),
		"task":   int64(ev.Task),
		"other":  int64(ev.Other),
		"target": int64(ev.Target),
		"tick":   int64(ev.Tick),
	})
}
