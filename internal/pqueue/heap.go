// Package pqueue implements the indexed binary heap that holds waiting
// processes. Keys are effective priorities (lower is more urgent) and every
// comparison goes through Compare, so ordering is total and reproducible.
package pqueue

import (
	"fmt"
	"slices"

	"github.com/me/gosched/pkg/model"
)

// Compare orders processes by effective priority, then arrival time, then
// id. It returns a negative number when a is more urgent than b.
func Compare(a, b *model.Process) int {
	if a.EffectivePriority != b.EffectivePriority {
		if a.EffectivePriority < b.EffectivePriority {
			return -1
		}
		return 1
	}
	if a.Arrival != b.Arrival {
		if a.Arrival < b.Arrival {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Less reports whether a must leave the heap before b.
func Less(a, b *model.Process) bool {
	return Compare(a, b) < 0
}

// Heap is an array-backed binary min-heap of process references with an
// id → index map for O(log n) key updates. It never copies processes.
// Heap is not safe for concurrent use.
type Heap struct {
	items []*model.Process
	index map[model.ProcessID]int
}

// New creates an empty heap.
func New() *Heap {
	return &Heap{index: make(map[model.ProcessID]int)}
}

// Len returns the number of queued processes.
func (h *Heap) Len() int {
	return len(h.items)
}

// Contains reports whether a process with id is queued.
func (h *Heap) Contains(id model.ProcessID) bool {
	_, ok := h.index[id]
	return ok
}

// Insert adds p at the next free leaf and sifts it up.
// Inserting an id that is already queued is a programming error and is
// reported as a DuplicateIDError.
func (h *Heap) Insert(p *model.Process) error {
	if _, ok := h.index[p.ID]; ok {
		return &model.DuplicateIDError{ID: p.ID}
	}
	h.items = append(h.items, p)
	i := len(h.items) - 1
	h.index[p.ID] = i
	h.siftUp(i)
	return nil
}

// PeekTop returns the most urgent process without removing it.
func (h *Heap) PeekTop() (*model.Process, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// ExtractTop removes and returns the most urgent process. The last leaf is
// moved to the root and sifted down.
func (h *Heap) ExtractTop() (*model.Process, bool) {
	n := len(h.items)
	if n == 0 {
		return nil, false
	}
	top := h.items[0]
	last := n - 1
	h.swap(0, last)
	h.items[last] = nil
	h.items = h.items[:last]
	delete(h.index, top.ID)
	if last > 0 {
		h.siftDown(0)
	}
	return top, true
}

// UpdateKey sets the effective priority of a queued process and restores
// the heap property, sifting up when urgency improved and down when it
// worsened. Waiting processes must only be re-keyed through this method.
func (h *Heap) UpdateKey(id model.ProcessID, priority int) error {
	i, ok := h.index[id]
	if !ok {
		return &model.HeapCorruptionError{Op: "update-key", Detail: fmt.Sprintf("process %d is not queued", id)}
	}
	p := h.items[i]
	if p.ID != id {
		return &model.HeapCorruptionError{
			Op:     "update-key",
			Detail: fmt.Sprintf("index map points process %d at slot %d holding process %d", id, i, p.ID),
		}
	}
	old := p.EffectivePriority
	p.EffectivePriority = priority
	switch {
	case priority < old:
		h.siftUp(i)
	case priority > old:
		h.siftDown(i)
	}
	return nil
}

// Items returns the queued processes in heap-array order.
func (h *Heap) Items() []*model.Process {
	return slices.Clone(h.items)
}

// Ordered returns the queued processes from most to least urgent.
func (h *Heap) Ordered() []*model.Process {
	out := slices.Clone(h.items)
	slices.SortFunc(out, Compare)
	return out
}

// Verify checks the heap property for every node and the consistency of
// the index map. Any violation is returned as a HeapCorruptionError.
func (h *Heap) Verify() error {
	if len(h.index) != len(h.items) {
		return &model.HeapCorruptionError{
			Op:     "verify",
			Detail: fmt.Sprintf("index map has %d entries for %d items", len(h.index), len(h.items)),
		}
	}
	for i, p := range h.items {
		if p == nil {
			return &model.HeapCorruptionError{Op: "verify", Detail: fmt.Sprintf("nil process at slot %d", i)}
		}
		if j, ok := h.index[p.ID]; !ok || j != i {
			return &model.HeapCorruptionError{
				Op:     "verify",
				Detail: fmt.Sprintf("process %d at slot %d indexed at %d", p.ID, i, j),
			}
		}
		for _, c := range []int{2*i + 1, 2*i + 2} {
			if c < len(h.items) && Less(h.items[c], p) {
				return &model.HeapCorruptionError{
					Op:     "verify",
					Detail: fmt.Sprintf("child %d (process %d) more urgent than parent %d (process %d)", c, h.items[c].ID, i, p.ID),
				}
			}
		}
	}
	return nil
}

func (h *Heap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !Less(h.items[i], h.items[parent]) {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *Heap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left, right := 2*i+1, 2*i+2
		if left < n && Less(h.items[left], h.items[smallest]) {
			smallest = left
		}
		if right < n && Less(h.items[right], h.items[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *Heap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].ID] = i
	h.index[h.items[j].ID] = j
}
