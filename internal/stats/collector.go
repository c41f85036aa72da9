// Package stats accumulates the accounting of a simulation run and turns it
// into a read-only model.Stats snapshot.
package stats

import (
	"slices"

	"github.com/me/gosched/pkg/model"
)

// Collector receives engine events. It owns the accounting fields of each
// process (Waiting, FirstScheduled, LastScheduled, Dispatches, Preemptions
// and Completion) and the run-wide counters.
type Collector struct {
	busy            int64
	idle            int64
	contextSwitches int
	preemptions     int
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{}
}

// Dispatch records p taking the CPU at now. The interval since the process
// was queued is added to its waiting time.
func (c *Collector) Dispatch(p *model.Process, now int64) {
	if p.EnqueuedAt != model.Unset && now > p.EnqueuedAt {
		p.Waiting += now - p.EnqueuedAt
	}
	if p.FirstScheduled == model.Unset {
		p.FirstScheduled = now
	}
	p.LastScheduled = now
	p.Dispatches++
	c.contextSwitches++
}

// Preempt records p losing the CPU to a more urgent process.
func (c *Collector) Preempt(p *model.Process) {
	p.Preemptions++
	c.preemptions++
}

// Complete records p finishing at now.
func (c *Collector) Complete(p *model.Process, now int64) {
	p.Completion = now
}

// Busy adds d units of CPU execution.
func (c *Collector) Busy(d int64) { c.busy += d }

// Idle adds d units with no runnable process.
func (c *Collector) Idle(d int64) { c.idle += d }

// ContextSwitches returns the number of dispatches recorded so far.
func (c *Collector) ContextSwitches() int { return c.contextSwitches }

// Snapshot builds the statistics for processes at time end. Elapsed time is
// measured from time 0, so busy plus idle time equals elapsed. Processes still waiting at end are
// charged for their current wait so partial snapshots stay meaningful;
// averages cover completed processes only.
func (c *Collector) Snapshot(processes []*model.Process, end int64) model.Stats {
	ordered := slices.Clone(processes)
	slices.SortFunc(ordered, func(a, b *model.Process) int { return int(a.ID) - int(b.ID) })

	s := model.Stats{
		Processes:       make([]model.ProcessStats, 0, len(ordered)),
		ContextSwitches: c.contextSwitches,
		Preemptions:     c.preemptions,
		BusyTime:        c.busy,
		IdleTime:        c.idle,
	}

	var sumWait, sumTurn, sumResp int64
	for _, p := range ordered {
		waiting := p.Waiting
		if p.State == model.ProcessStateWaiting && p.EnqueuedAt != model.Unset && end > p.EnqueuedAt {
			waiting += end - p.EnqueuedAt
		}
		ps := model.ProcessStats{
			ID:          p.ID,
			Name:        p.Name,
			Arrival:     p.Arrival,
			Burst:       p.Burst,
			Priority:    p.BasePriority,
			Completion:  p.Completion,
			Waiting:     waiting,
			Turnaround:  p.Turnaround(),
			Response:    p.Response(),
			Preemptions: p.Preemptions,
			Dispatches:  p.Dispatches,
			Completed:   p.State == model.ProcessStateCompleted,
		}
		s.Processes = append(s.Processes, ps)
		if waiting > s.MaxWaiting {
			s.MaxWaiting = waiting
		}
		if !ps.Completed {
			continue
		}
		s.Completed++
		sumWait += ps.Waiting
		sumTurn += ps.Turnaround
		sumResp += ps.Response
	}

	if s.Completed > 0 {
		n := float64(s.Completed)
		s.AverageWaiting = float64(sumWait) / n
		s.AverageTurnaround = float64(sumTurn) / n
		s.AverageResponse = float64(sumResp) / n
	}
	if end > 0 {
		s.Elapsed = end
		s.Utilization = float64(s.BusyTime) / float64(s.Elapsed)
		s.Throughput = float64(s.Completed) / float64(s.Elapsed)
	}
	return s
}
