package kernel

import (
	"errors"
	"reflect"
	"testing"
)

func newTestRunqueue(capacity int, ids ...TaskID) *Runqueue {
	rq := &Runqueue{}
	rq.init("test", capacity)
	rq.seed(ids[0])
	for _, id := range ids[1:] {
		if err := rq.Add(id); err != nil {
			panic(err)
		}
	}
	return rq
}

func TestRunqueueAddKeepsOrder(t *testing.T) {
	rq := newTestRunqueue(4, 0, 3, 5)

	if got, want := rq.Tasks(), []TaskID{0, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Tasks() = %v, want %v", got, want)
	}
	if err := rq.Add(7); err != nil {
		t.Fatalf("Add(7): %v", err)
	}
	if err := rq.Add(8); !errors.Is(err, ErrRunqueueFull) {
		t.Fatalf("Add on full queue = %v, want ErrRunqueueFull", err)
	}
	if rq.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", rq.Len())
	}
}

func TestRunqueueRemoveShiftsLeft(t *testing.T) {
	rq := newTestRunqueue(8, 0, 1, 2, 3, 4)

	if err := rq.Remove(2); err != nil {
		t.Fatalf("Remove(2): %v", err)
	}
	if got, want := rq.Tasks(), []TaskID{0, 1, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Tasks() = %v, want %v", got, want)
	}
	if err := rq.Remove(4); err != nil {
		t.Fatalf("Remove(4): %v", err)
	}
	if got, want := rq.Tasks(), []TaskID{0, 1, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Tasks() = %v, want %v", got, want)
	}
	if rq.Contains(4) {
		t.Fatal("removed task still queued")
	}
}

func TestRunqueueRemoveAbsentKeepsCount(t *testing.T) {
	rq := newTestRunqueue(4, 0, 1)

	if err := rq.Remove(9); !errors.Is(err, ErrNotQueued) {
		t.Fatalf("Remove(9) = %v, want ErrNotQueued", err)
	}
	if rq.Len() != 2 {
		t.Fatalf("Len() = %d after absent remove, want 2", rq.Len())
	}
}

func TestRunqueueRemoveIdleRefused(t *testing.T) {
	rq := newTestRunqueue(4, 6, 1)

	if err := rq.Remove(6); !errors.Is(err, ErrIdleTask) {
		t.Fatalf("Remove(idle) = %v, want ErrIdleTask", err)
	}
	if got := rq.Tasks(); got[0] != 6 || len(got) != 2 {
		t.Fatalf("Tasks() = %v after idle remove", got)
	}
}

func TestRunqueueNextSkipsIdle(t *testing.T) {
	rq := newTestRunqueue(8, 0, 1, 2, 3)
	runnable := func(TaskID) bool { return true }

	var got []TaskID
	for i := 0; i < 6; i++ {
		idx, id := rq.next(runnable)
		rq.cur = idx
		got = append(got, id)
	}
	if want := []TaskID{1, 2, 3, 1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("schedule = %v, want %v", got, want)
	}
}

func TestRunqueueNextFairness(t *testing.T) {
	rq := newTestRunqueue(8, 0, 1, 2, 3, 4, 5)
	runnable := func(TaskID) bool { return true }

	for start := 0; start < rq.Len(); start++ {
		rq.cur = start
		seen := map[TaskID]bool{}
		for i := 0; i < rq.Len()-1; i++ {
			idx, id := rq.next(runnable)
			rq.cur = idx
			seen[id] = true
		}
		for id := TaskID(1); id <= 5; id++ {
			if !seen[id] {
				t.Fatalf("start %d: task %d not chosen within %d decisions", start, id, rq.Len()-1)
			}
		}
	}
}

func TestRunqueueNextIdleFallback(t *testing.T) {
	rq := newTestRunqueue(8, 0, 1, 2)
	none := func(TaskID) bool { return false }

	for cur := 0; cur < 3; cur++ {
		rq.cur = cur
		if idx, id := rq.next(none); idx != 0 || id != 0 {
			t.Fatalf("cur %d: next = (%d, %d), want idle", cur, idx, id)
		}
	}

	only2 := func(id TaskID) bool { return id == 2 }
	rq.cur = 2
	if idx, _ := rq.next(only2); idx != 0 {
		t.Fatalf("only current runnable: next idx = %d, want 0", idx)
	}
	rq.cur = 0
	if idx, id := rq.next(only2); idx != 2 || id != 2 {
		t.Fatalf("next = (%d, %d), want (2, 2)", idx, id)
	}
}

func TestRunqueueNextAfterShrink(t *testing.T) {
	rq := newTestRunqueue(8, 0, 1, 2)
	rq.cur = 2
	if err := rq.Remove(2); err != nil {
		t.Fatalf("Remove(2): %v", err)
	}
	if idx, id := rq.next(func(TaskID) bool { return true }); idx != 1 || id != 1 {
		t.Fatalf("next = (%d, %d), want (1, 1)", idx, id)
	}
}
