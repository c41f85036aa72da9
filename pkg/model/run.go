package model

import "time"

// Run is an archived simulation: the workload it ran and what came out.
type Run struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     RunState  `json:"state"`
	Error     string    `json:"error,omitempty"`
	Workload  Workload  `json:"workload"`
	Result    *Result   `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunSummary is the list view of a Run.
type RunSummary struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	State             RunState  `json:"state"`
	Processes         int       `json:"processes"`
	Ticks             int       `json:"ticks"`
	AverageWaiting    float64   `json:"average_waiting"`
	AverageTurnaround float64   `json:"average_turnaround"`
	CreatedAt         time.Time `json:"created_at"`
}

// Summary returns the list view of the run.
func (r *Run) Summary() RunSummary {
	s := RunSummary{
		ID:        r.ID,
		Name:      r.Name,
		State:     r.State,
		Processes: len(r.Workload.Processes),
		CreatedAt: r.CreatedAt,
	}
	if r.Result != nil {
		s.Ticks = r.Result.Ticks
		s.AverageWaiting = r.Result.Stats.AverageWaiting
		s.AverageTurnaround = r.Result.Stats.AverageTurnaround
	}
	return s
}
