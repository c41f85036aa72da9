package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/me/gosched/internal/aging"
	"github.com/me/gosched/internal/pqueue"
	"github.com/me/gosched/internal/stats"
	"github.com/me/gosched/pkg/model"
)

// Engine simulates one processor shared by a fixed set of processes.
// It is deterministic and not safe for concurrent use.
type Engine struct {
	cfg    Config
	policy aging.Policy
	logger *slog.Logger

	heap      *pqueue.Heap
	processes []*model.Process // intake order: arrival, priority, id
	next      int              // index of the first process not yet admitted

	clock     int64
	ticks     int
	state     model.EngineState
	completed int

	running      *model.Process
	runPriority  int
	dispatchedAt int64

	trace    []model.TraceEvent
	timeline []model.Slice
	stats    *stats.Collector

	// err halts the engine; every later tick returns it.
	err error
}

// New validates specs and cfg and builds an engine positioned at time 0.
// No state is created when validation fails.
func New(specs []model.ProcessSpec, cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	policy, err := aging.New(cfg.Aging)
	if err != nil {
		return nil, err
	}
	if cfg.MaxTicks == 0 {
		cfg.MaxTicks = DefaultMaxTicks(specs)
	}

	procs := make([]*model.Process, 0, len(specs))
	for _, s := range specs {
		procs = append(procs, model.NewProcess(s))
	}
	slices.SortFunc(procs, func(a, b *model.Process) int {
		if a.Arrival != b.Arrival {
			if a.Arrival < b.Arrival {
				return -1
			}
			return 1
		}
		return pqueue.Compare(a, b)
	})

	e := &Engine{
		cfg:       cfg,
		policy:    policy,
		logger:    logger.With("component", "scheduler"),
		heap:      pqueue.New(),
		processes: procs,
		state:     model.EngineStateIdle,
		stats:     stats.New(),
	}
	if len(procs) == 0 {
		e.state = model.EngineStateCompleted
	}
	return e, nil
}

// Tick makes one scheduling decision:
//
//  1. admit every process whose arrival time has been reached
//  2. age all waiting processes
//  3. preempt the running process if the top of the heap is strictly more urgent
//  4. dispatch the top of the heap onto a free CPU, or idle until the next arrival
//  5. run for min(quantum, remaining, time to next arrival)
//  6. retire the process if it finished
//
// Ticks after completion are no-ops.
func (e *Engine) Tick(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return e.Snapshot(), err
	}
	if e.err != nil {
		return e.Snapshot(), e.err
	}
	if e.state.IsTerminal() {
		return e.Snapshot(), nil
	}

	e.ticks++
	mark := len(e.trace)
	if err := e.step(); err != nil {
		e.err = err
		e.logger.Error("engine halted", "tick", e.ticks, "clock", e.clock, "error", err)
		return e.snapshotSince(mark), err
	}
	if e.cfg.VerifyHeap {
		if err := e.heap.Verify(); err != nil {
			e.err = err
			e.logger.Error("heap verification failed", "tick", e.ticks, "error", err)
			return e.snapshotSince(mark), err
		}
	}
	return e.snapshotSince(mark), nil
}

func (e *Engine) step() error {
	if err := e.admit(); err != nil {
		return fmt.Errorf("admit: %w", err)
	}
	if err := e.age(); err != nil {
		return fmt.Errorf("age: %w", err)
	}

	if e.running != nil {
		if err := e.maybePreempt(); err != nil {
			return fmt.Errorf("preempt: %w", err)
		}
	}

	if e.running == nil {
		top, ok := e.heap.ExtractTop()
		if !ok {
			return e.idle()
		}
		if err := e.dispatch(top); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}

	return e.execute()
}

// admit moves every arrived process into the heap.
func (e *Engine) admit() error {
	for e.next < len(e.processes) && e.processes[e.next].Arrival <= e.clock {
		p := e.processes[e.next]
		if err := p.Transition(model.ProcessStateWaiting); err != nil {
			return err
		}
		p.EnqueuedAt = p.Arrival
		p.QueuedPriority = p.BasePriority
		p.EffectivePriority = p.BasePriority
		if err := e.heap.Insert(p); err != nil {
			return err
		}
		e.next++
		e.logger.Debug("admitted", "process", p.Name, "arrival", p.Arrival, "priority", p.BasePriority)
	}
	return nil
}

// age recomputes every waiting process's key. Keys change only through
// UpdateKey so the heap order stays valid.
func (e *Engine) age() error {
	for _, p := range e.heap.Items() {
		prio, err := e.policy.Adjust(p, e.clock)
		if err != nil {
			return err
		}
		if prio == p.EffectivePriority {
			continue
		}
		if err := e.heap.UpdateKey(p.ID, prio); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) maybePreempt() error {
	top, ok := e.heap.PeekTop()
	if !ok || top.EffectivePriority >= e.runPriority {
		return nil
	}

	if err := e.setState(model.EngineStatePreempting); err != nil {
		return err
	}
	p := e.running
	e.emit(model.EventPreempt, p.ID, e.dispatchedAt, e.clock)
	e.stats.Preempt(p)
	e.logger.Debug("preempt", "process", p.Name, "by", top.Name, "t", e.clock,
		"running_priority", e.runPriority, "top_priority", top.EffectivePriority)

	if err := p.Transition(model.ProcessStateWaiting); err != nil {
		return err
	}
	if !e.cfg.RetainAgedPriority {
		p.EffectivePriority = p.BasePriority
	}
	p.QueuedPriority = p.EffectivePriority
	p.EnqueuedAt = e.clock
	e.running = nil
	if err := e.heap.Insert(p); err != nil {
		return err
	}

	next, ok := e.heap.ExtractTop()
	if !ok || next.ID != top.ID {
		return &model.HeapCorruptionError{Op: "extract-top", Detail: fmt.Sprintf("expected process %d after preemption", top.ID)}
	}
	return e.dispatch(next)
}

func (e *Engine) dispatch(p *model.Process) error {
	if err := p.Transition(model.ProcessStateRunning); err != nil {
		return err
	}
	if err := e.setState(model.EngineStateRunning); err != nil {
		return err
	}
	e.stats.Dispatch(p, e.clock)
	if !e.cfg.RetainAgedPriority {
		p.EffectivePriority = p.BasePriority
	}
	p.EnqueuedAt = model.Unset
	e.running = p
	e.runPriority = p.EffectivePriority
	e.dispatchedAt = e.clock
	e.emit(model.EventDispatch, p.ID, e.clock, e.clock)
	e.logger.Debug("dispatch", "process", p.Name, "t", e.clock, "priority", e.runPriority, "remaining", p.Remaining)
	return nil
}

// idle handles a tick with nothing runnable: the clock jumps to the next
// arrival and the gap is recorded on the timeline.
func (e *Engine) idle() error {
	if e.next >= len(e.processes) {
		return &model.HeapCorruptionError{
			Op:     "extract-top",
			Detail: fmt.Sprintf("heap empty with %d of %d processes incomplete", len(e.processes)-e.completed, len(e.processes)),
		}
	}
	if err := e.setState(model.EngineStateIdle); err != nil {
		return err
	}
	until := e.processes[e.next].Arrival
	e.appendSlice(model.NoProcess, e.clock, until, true)
	e.stats.Idle(until - e.clock)
	e.logger.Debug("idle", "from", e.clock, "until", until)
	e.clock = until
	return nil
}

// execute runs the current process until the quantum expires, it finishes
// or the next arrival, whichever comes first.
func (e *Engine) execute() error {
	p := e.running
	run := min(e.cfg.Quantum, p.Remaining)
	if e.next < len(e.processes) {
		run = min(run, e.processes[e.next].Arrival-e.clock)
	}

	start := e.clock
	p.Remaining -= run
	e.clock += run
	e.stats.Busy(run)
	e.appendSlice(p.ID, start, e.clock, false)

	if p.Remaining > 0 {
		return nil
	}

	if err := p.Transition(model.ProcessStateCompleted); err != nil {
		return err
	}
	e.stats.Complete(p, e.clock)
	e.emit(model.EventComplete, p.ID, e.dispatchedAt, e.clock)
	e.running = nil
	e.completed++
	e.logger.Debug("complete", "process", p.Name, "t", e.clock, "waiting", p.Waiting)

	if e.completed == len(e.processes) {
		return e.setState(model.EngineStateCompleted)
	}
	return nil
}

func (e *Engine) setState(next model.EngineState) error {
	if !e.state.CanTransitionTo(next) {
		return &model.InvalidTransitionError{
			Entity: "engine",
			ID:     fmt.Sprintf("tick %d", e.ticks),
			From:   e.state.String(),
			To:     next.String(),
		}
	}
	e.state = next
	return nil
}

func (e *Engine) emit(typ model.EventType, id model.ProcessID, start, end int64) {
	e.trace = append(e.trace, model.TraceEvent{ProcessID: id, StartTime: start, EndTime: end, Type: typ})
}

// appendSlice extends the last timeline slice when the same occupant
// continues without a gap.
func (e *Engine) appendSlice(id model.ProcessID, start, end int64, idle bool) {
	if n := len(e.timeline); n > 0 {
		last := &e.timeline[n-1]
		if last.ProcessID == id && last.Idle == idle && last.End == start {
			last.End = end
			return
		}
	}
	e.timeline = append(e.timeline, model.Slice{ProcessID: id, Start: start, End: end, Idle: idle})
}

// Run ticks until all processes complete. When MaxTicks is reached it
// returns the partial result with a MaxTicksExceededError; a cancelled
// context returns the partial result with ctx.Err().
func (e *Engine) Run(ctx context.Context) (*model.Result, error) {
	e.logger.Info("simulation started",
		"processes", len(e.processes), "quantum", e.cfg.Quantum,
		"aging", e.policy.Name(), "max_ticks", e.cfg.MaxTicks)

	for !e.state.IsTerminal() {
		if e.ticks >= e.cfg.MaxTicks {
			err := &model.MaxTicksExceededError{MaxTicks: e.cfg.MaxTicks, Clock: e.clock}
			e.logger.Warn("simulation aborted", "error", err)
			return e.Result(), err
		}
		if _, err := e.Tick(ctx); err != nil {
			return e.Result(), err
		}
	}

	res := e.Result()
	e.logger.Info("simulation completed",
		"ticks", res.Ticks, "clock", res.Clock,
		"avg_waiting", res.Stats.AverageWaiting, "avg_turnaround", res.Stats.AverageTurnaround,
		"context_switches", res.Stats.ContextSwitches, "utilization", res.Stats.Utilization)
	return res, nil
}

// Result returns the trace, timeline and statistics gathered so far.
func (e *Engine) Result() *model.Result {
	return &model.Result{
		State:    e.state,
		Ticks:    e.ticks,
		Clock:    e.clock,
		Trace:    e.Trace(),
		Timeline: append([]model.Slice{}, e.timeline...),
		Stats:    e.stats.Snapshot(e.processes, e.clock),
	}
}

// Snapshot returns the current state without the events of any tick.
func (e *Engine) Snapshot() model.Snapshot {
	return e.snapshotSince(len(e.trace))
}

func (e *Engine) snapshotSince(mark int) model.Snapshot {
	s := model.Snapshot{
		Tick:      e.ticks,
		Clock:     e.clock,
		State:     e.state,
		Waiting:   []model.ProcessID{},
		Completed: e.completed,
		Total:     len(e.processes),
	}
	if e.running != nil {
		s.Running = e.running.ID
	}
	for _, p := range e.heap.Ordered() {
		s.Waiting = append(s.Waiting, p.ID)
	}
	if mark < len(e.trace) {
		s.Events = slices.Clone(e.trace[mark:])
	}
	return s
}

// State returns the engine state.
func (e *Engine) State() model.EngineState { return e.state }

// Clock returns the simulated time.
func (e *Engine) Clock() int64 { return e.clock }

// Ticks returns the number of ticks that made a decision.
func (e *Engine) Ticks() int { return e.ticks }

// Config returns the effective configuration, with defaults applied.
func (e *Engine) Config() Config { return e.cfg }

// Trace returns a copy of the execution trace.
func (e *Engine) Trace() []model.TraceEvent {
	return append([]model.TraceEvent{}, e.trace...)
}

// Processes returns copies of all processes ordered by id.
func (e *Engine) Processes() []model.Process {
	out := make([]model.Process, 0, len(e.processes))
	for _, p := range e.processes {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b model.Process) int { return int(a.ID) - int(b.ID) })
	return out
}
