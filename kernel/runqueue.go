package kernel

import "fmt"

// Runqueue is the ordered set of tasks owned by one core. Entry 0 is the
// core's idle task and is never removed; the entry order is the round-robin
// order.
type Runqueue struct {
	lock  Spinlock
	tasks []TaskID
	num   int
	// cur is the index of the running entry. Only the owning core touches it.
	cur int
}

func (rq *Runqueue) init(name string, capacity int) {
	rq.lock.init(name)
	rq.tasks = make([]TaskID, capacity)
	rq.num = 0
	rq.cur = 0
}

// seed installs the idle task at index 0 and makes it current.
func (rq *Runqueue) seed(idle TaskID) {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	rq.tasks[0] = idle
	rq.num = 1
	rq.cur = 0
}

// Add appends id to the tail. The caller guarantees id is not queued already.
func (rq *Runqueue) Add(id TaskID) error {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	if rq.num >= len(rq.tasks) {
		return fmt.Errorf("add task %d: %w", id, ErrRunqueueFull)
	}
	rq.tasks[rq.num] = id
	rq.num++
	return nil
}

// Remove drops id and shifts the later entries left, keeping their order.
// Removing an absent id changes nothing.
func (rq *Runqueue) Remove(id TaskID) error {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	for i := 0; i < rq.num; i++ {
		if rq.tasks[i] != id {
			continue
		}
		if i == 0 {
			return fmt.Errorf("remove task %d: %w", id, ErrIdleTask)
		}
		copy(rq.tasks[i:rq.num-1], rq.tasks[i+1:rq.num])
		rq.num--
		rq.tasks[rq.num] = NoTask
		return nil
	}
	return fmt.Errorf("remove task %d: %w", id, ErrNotQueued)
}

// Len returns the number of queued tasks, the idle task included.
func (rq *Runqueue) Len() int {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	return rq.num
}

// Tasks returns a copy of the queue in round-robin order.
func (rq *Runqueue) Tasks() []TaskID {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	return append([]TaskID(nil), rq.tasks[:rq.num]...)
}

// Contains reports whether id is queued.
func (rq *Runqueue) Contains(id TaskID) bool {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	return rq.indexOf(id) >= 0
}

func (rq *Runqueue) indexOf(id TaskID) int {
	for i := 0; i < rq.num; i++ {
		if rq.tasks[i] == id {
			return i
		}
	}
	return -1
}

// each calls fn for every queued task under the queue lock.
func (rq *Runqueue) each(fn func(id TaskID)) {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	for i := 0; i < rq.num; i++ {
		fn(rq.tasks[i])
	}
}

// next returns the entry after the current one that is runnable, going round
// the queue once. The idle entry is only returned when nothing else is
// runnable.
func (rq *Runqueue) next(runnable func(TaskID) bool) (int, TaskID) {
	rq.lock.Lock()
	defer rq.lock.Unlock()
	if rq.num == 0 {
		return -1, NoTask
	}
	cur := rq.cur
	if cur >= rq.num {
		cur = 0
	}
	idx := cur
	for {
		idx = (idx + 1) % rq.num
		if idx == cur || (idx != 0 && runnable(rq.tasks[idx])) {
			break
		}
	}
	if idx == cur {
		idx = 0
	}
	return idx, rq.tasks[idx]
}
