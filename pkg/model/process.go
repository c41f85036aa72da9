package model

import "fmt"

// ProcessID uniquely identifies a process within one simulation.
type ProcessID int

// NoProcess is the zero ProcessID, used where no process occupies the CPU.
const NoProcess ProcessID = 0

// Unset marks a time field that has not been recorded yet.
const Unset int64 = -1

// ProcessSpec is the caller-supplied description of one unit of work.
//
// Priority follows a single convention everywhere: a LOWER value is MORE
// urgent, and 0 is the most urgent priority that can be expressed.
type ProcessSpec struct {
	ID       ProcessID `json:"id" yaml:"id"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Arrival  int64     `json:"arrival" yaml:"arrival"`
	Burst    int64     `json:"burst" yaml:"burst"`
	Priority int       `json:"priority" yaml:"priority"`
}

// Label returns the display name, falling back to "P<id>".
func (s ProcessSpec) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("P%d", s.ID)
}

// Process is the runtime state of one schedulable unit of work.
// Identity and static attributes never change after creation.
type Process struct {
	ID           ProcessID `json:"id"`
	Name         string    `json:"name"`
	Arrival      int64     `json:"arrival"`
	Burst        int64     `json:"burst"`
	BasePriority int       `json:"base_priority"`

	State     ProcessState `json:"state"`
	Remaining int64        `json:"remaining"`

	// EffectivePriority is the heap key. Only the heap may change it while
	// the process is waiting.
	EffectivePriority int `json:"effective_priority"`

	// QueuedPriority is the priority the current wait started from; aging
	// is measured relative to it and EnqueuedAt.
	QueuedPriority int   `json:"queued_priority"`
	EnqueuedAt     int64 `json:"enqueued_at"`

	Waiting        int64 `json:"waiting"`
	FirstScheduled int64 `json:"first_scheduled"`
	LastScheduled  int64 `json:"last_scheduled"`
	Completion     int64 `json:"completion"`
	Preemptions    int   `json:"preemptions"`
	Dispatches     int   `json:"dispatches"`
}

// NewProcess creates a process in the PENDING state from its spec.
func NewProcess(spec ProcessSpec) *Process {
	return &Process{
		ID:                spec.ID,
		Name:              spec.Label(),
		Arrival:           spec.Arrival,
		Burst:             spec.Burst,
		BasePriority:      spec.Priority,
		State:             ProcessStatePending,
		Remaining:         spec.Burst,
		EffectivePriority: spec.Priority,
		QueuedPriority:    spec.Priority,
		EnqueuedAt:        Unset,
		FirstScheduled:    Unset,
		LastScheduled:     Unset,
		Completion:        Unset,
	}
}

// Transition moves the process to next, rejecting moves outside
// ValidProcessTransitions.
func (p *Process) Transition(next ProcessState) error {
	if !p.State.CanTransitionTo(next) {
		return &InvalidTransitionError{
			Entity: "process",
			ID:     fmt.Sprint(p.ID),
			From:   p.State.String(),
			To:     next.String(),
		}
	}
	p.State = next
	return nil
}

// Turnaround returns completion minus arrival, or Unset if not completed.
func (p *Process) Turnaround() int64 {
	if p.Completion == Unset {
		return Unset
	}
	return p.Completion - p.Arrival
}

// Response returns first dispatch minus arrival, or Unset if never dispatched.
func (p *Process) Response() int64 {
	if p.FirstScheduled == Unset {
		return Unset
	}
	return p.FirstScheduled - p.Arrival
}
