package model

// ProcessStats holds the per-process figures of a finished run.
type ProcessStats struct {
	ID          ProcessID `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Arrival     int64     `json:"arrival" yaml:"arrival"`
	Burst       int64     `json:"burst" yaml:"burst"`
	Priority    int       `json:"priority" yaml:"priority"`
	Completion  int64     `json:"completion" yaml:"completion"`
	Waiting     int64     `json:"waiting" yaml:"waiting"`
	Turnaround  int64     `json:"turnaround" yaml:"turnaround"`
	Response    int64     `json:"response" yaml:"response"`
	Preemptions int       `json:"preemptions" yaml:"preemptions"`
	Dispatches  int       `json:"dispatches" yaml:"dispatches"`
	Completed   bool      `json:"completed" yaml:"completed"`
}

// Stats is the read-only statistics snapshot of a run.
type Stats struct {
	Processes []ProcessStats `json:"processes" yaml:"processes"`

	Completed         int     `json:"completed" yaml:"completed"`
	AverageWaiting    float64 `json:"average_waiting" yaml:"average_waiting"`
	AverageTurnaround float64 `json:"average_turnaround" yaml:"average_turnaround"`
	AverageResponse   float64 `json:"average_response" yaml:"average_response"`
	MaxWaiting        int64   `json:"max_waiting" yaml:"max_waiting"`
	ContextSwitches   int     `json:"context_switches" yaml:"context_switches"`
	Preemptions       int     `json:"preemptions" yaml:"preemptions"`
	BusyTime          int64   `json:"busy_time" yaml:"busy_time"`
	IdleTime          int64   `json:"idle_time" yaml:"idle_time"`
	Elapsed           int64   `json:"elapsed" yaml:"elapsed"`
	Utilization       float64 `json:"utilization" yaml:"utilization"`
	Throughput        float64 `json:"throughput" yaml:"throughput"`
}

// Process returns the stats entry for id, if present.
func (s Stats) Process(id ProcessID) (ProcessStats, bool) {
	for _, ps := range s.Processes {
		if ps.ID == id {
			return ps, true
		}
	}
	return ProcessStats{}, false
}
