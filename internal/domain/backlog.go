package domain

import (
	"fmt"
	"sort"
	"time"
)

// Backlog is the per-run arena of task copies. Templates handed to
// NewBacklog are never touched again.
type Backlog struct {
	tasks []Task
	index map[int]int
}

func NewBacklog(templates []Task) (*Backlog, error) {
	b := &Backlog{
		tasks: CloneTasks(templates),
		index: make(map[int]int, len(templates)),
	}
	for i := range b.tasks {
		t := &b.tasks[i]
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := b.index[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task id %d", ErrInvalidArgument, t.ID)
		}
		b.index[t.ID] = i
	}
	for i := range b.tasks {
		for _, dep := range b.tasks[i].Dependencies {
			if _, ok := b.index[dep]; !ok {
				return nil, fmt.Errorf("%w: task %d depends on unknown task %d", ErrInvalidArgument, b.tasks[i].ID, dep)
			}
		}
	}
	return b, nil
}

func (b *Backlog) Len() int {
	return len(b.tasks)
}

// Tasks returns pointers into the arena in insertion order.
func (b *Backlog) Tasks() []*Task {
	out := make([]*Task, len(b.tasks))
	for i := range b.tasks {
		out[i] = &b.tasks[i]
	}
	return out
}

func (b *Backlog) Get(id int) (*Task, bool) {
	i, ok := b.index[id]
	if !ok {
		return nil, false
	}
	return &b.tasks[i], true
}

func (b *Backlog) dependenciesDone(t *Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := b.Get(dep)
		if !ok || !d.Completed {
			return false
		}
	}
	return true
}

// Ready lists incomplete, non-exhausted tasks whose dependencies are all
// complete, ordered by id.
func (b *Backlog) Ready() []*Task {
	ready := make([]*Task, 0, len(b.tasks))
	for i := range b.tasks {
		t := &b.tasks[i]
		if t.Completed || t.Exhausted() {
			continue
		}
		if !b.dependenciesDone(t) {
			continue
		}
		ready = append(ready, t)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

func (b *Backlog) MarkCompleted(id int, at time.Time) error {
	t, ok := b.Get(id)
	if !ok {
		return fmt.Errorf("%w: task %d", ErrNotFound, id)
	}
	if t.Completed {
		return nil
	}
	t.Completed = true
	t.CompletedAt = &at
	return nil
}

func (b *Backlog) RecordFailure(id int) error {
	t, ok := b.Get(id)
	if !ok {
		return fmt.Errorf("%w: task %d", ErrNotFound, id)
	}
	t.FailedAttempts++
	return nil
}

func (b *Backlog) Completed() []*Task {
	var out []*Task
	for i := range b.tasks {
		if b.tasks[i].Completed {
			out = append(out, &b.tasks[i])
		}
	}
	return out
}

func (b *Backlog) Incomplete() []*Task {
	var out []*Task
	for i := range b.tasks {
		if !b.tasks[i].Completed {
			out = append(out, &b.tasks[i])
		}
	}
	return out
}

// Snapshot returns value copies of the current arena state.
func (b *Backlog) Snapshot() []Task {
	return CloneTasks(b.tasks)
}
