package model

// ProcessState represents the lifecycle state of a Process.
type ProcessState string

const (
	ProcessStatePending   ProcessState = "PENDING"
	ProcessStateWaiting   ProcessState = "WAITING"
	ProcessStateRunning   ProcessState = "RUNNING"
	ProcessStateCompleted ProcessState = "COMPLETED"
)

// String returns the string representation of the process state.
func (s ProcessState) String() string {
	return string(s)
}

// IsTerminal returns true if the process will never be scheduled again.
func (s ProcessState) IsTerminal() bool {
	return s == ProcessStateCompleted
}

// ValidProcessTransitions defines the allowed state transitions for Processes.
var ValidProcessTransitions = map[ProcessState][]ProcessState{
	ProcessStatePending: {ProcessStateWaiting},
	ProcessStateWaiting: {ProcessStateRunning},
	ProcessStateRunning: {ProcessStateWaiting, ProcessStateCompleted},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ProcessState) CanTransitionTo(next ProcessState) bool {
	for _, allowed := range ValidProcessTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EngineState represents the state of the scheduling engine.
type EngineState string

const (
	EngineStateIdle       EngineState = "IDLE"
	EngineStateRunning    EngineState = "RUNNING"
	EngineStatePreempting EngineState = "PREEMPTING"
	EngineStateCompleted  EngineState = "COMPLETED"
)

// String returns the string representation of the engine state.
func (s EngineState) String() string {
	return string(s)
}

// IsTerminal returns true once every process has completed.
func (s EngineState) IsTerminal() bool {
	return s == EngineStateCompleted
}

// ValidEngineTransitions defines the allowed state transitions for the engine.
// PREEMPTING is transitional: it always resolves to RUNNING within the same tick.
var ValidEngineTransitions = map[EngineState][]EngineState{
	EngineStateIdle:       {EngineStateIdle, EngineStateRunning, EngineStateCompleted},
	EngineStateRunning:    {EngineStateRunning, EngineStatePreempting, EngineStateIdle, EngineStateCompleted},
	EngineStatePreempting: {EngineStateRunning},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s EngineState) CanTransitionTo(next EngineState) bool {
	for _, allowed := range ValidEngineTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunState represents the outcome of an archived simulation run.
type RunState string

const (
	RunStateCompleted RunState = "COMPLETED"
	RunStateAborted   RunState = "ABORTED"
	RunStateFailed    RunState = "FAILED"
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	return string(s)
}
