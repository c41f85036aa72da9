package model

// EventType classifies an entry of the execution trace.
type EventType string

const (
	EventDispatch EventType = "dispatch"
	EventPreempt  EventType = "preempt"
	EventComplete EventType = "complete"
)

// TraceEvent is one entry of the ordered execution trace.
//
// For dispatch events StartTime equals EndTime. For preempt and complete
// events the interval is the stretch the process ran since its dispatch.
type TraceEvent struct {
	ProcessID ProcessID `json:"process_id" yaml:"process_id"`
	StartTime int64     `json:"start_time" yaml:"start_time"`
	EndTime   int64     `json:"end_time" yaml:"end_time"`
	Type      EventType `json:"event_type" yaml:"event_type"`
}

// Slice is a contiguous interval of the processor timeline. Idle slices
// carry NoProcess.
type Slice struct {
	ProcessID ProcessID `json:"process_id" yaml:"process_id"`
	Start     int64     `json:"start" yaml:"start"`
	End       int64     `json:"end" yaml:"end"`
	Idle      bool      `json:"idle,omitempty" yaml:"idle,omitempty"`
}

// Len returns the length of the slice in time units.
func (s Slice) Len() int64 {
	return s.End - s.Start
}

// Snapshot is the externally visible state after one tick.
type Snapshot struct {
	Tick      int          `json:"tick" yaml:"tick"`
	Clock     int64        `json:"clock" yaml:"clock"`
	State     EngineState  `json:"state" yaml:"state"`
	Running   ProcessID    `json:"running" yaml:"running"`
	Waiting   []ProcessID  `json:"waiting" yaml:"waiting"`
	Events    []TraceEvent `json:"events,omitempty" yaml:"events,omitempty"`
	Completed int          `json:"completed" yaml:"completed"`
	Total     int          `json:"total" yaml:"total"`
}

// Result is the outcome of driving an engine to completion (or abort).
type Result struct {
	State    EngineState  `json:"state" yaml:"state"`
	Ticks    int          `json:"ticks" yaml:"ticks"`
	Clock    int64        `json:"clock" yaml:"clock"`
	Trace    []TraceEvent `json:"trace" yaml:"trace"`
	Timeline []Slice      `json:"timeline" yaml:"timeline"`
	Stats    Stats        `json:"stats" yaml:"stats"`
}
