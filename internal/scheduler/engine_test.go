package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/gosched/internal/aging"
	"github.com/me/gosched/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, specs []model.ProcessSpec, cfg Config) *Engine {
	t.Helper()
	cfg.VerifyHeap = true
	e, err := New(specs, cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func run(t *testing.T, specs []model.ProcessSpec, cfg Config) *model.Result {
	t.Helper()
	res, err := newEngine(t, specs, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != model.EngineStateCompleted {
		t.Fatalf("State = %s, want COMPLETED", res.State)
	}
	return res
}

func spec(id model.ProcessID, arrival, burst int64, priority int) model.ProcessSpec {
	return model.ProcessSpec{ID: id, Arrival: arrival, Burst: burst, Priority: priority}
}

func dispatch(id model.ProcessID, at int64) model.TraceEvent {
	return model.TraceEvent{ProcessID: id, StartTime: at, EndTime: at, Type: model.EventDispatch}
}

func preempt(id model.ProcessID, from, to int64) model.TraceEvent {
	return model.TraceEvent{ProcessID: id, StartTime: from, EndTime: to, Type: model.EventPreempt}
}

func complete(id model.ProcessID, from, to int64) model.TraceEvent {
	return model.TraceEvent{ProcessID: id, StartTime: from, EndTime: to, Type: model.EventComplete}
}

func mustStats(t *testing.T, res *model.Result, id model.ProcessID) model.ProcessStats {
	t.Helper()
	ps, ok := res.Stats.Process(id)
	if !ok {
		t.Fatalf("no stats for process %d", id)
	}
	return ps
}

func TestEngine_HigherPriorityArrivalPreempts(t *testing.T) {
	res := run(t, []model.ProcessSpec{spec(1, 0, 5, 2), spec(2, 1, 3, 1)}, DefaultConfig())

	wantTrace := []model.TraceEvent{
		dispatch(1, 0),
		preempt(1, 0, 1),
		dispatch(2, 1),
		complete(2, 1, 4),
		dispatch(1, 4),
		complete(1, 4, 8),
	}
	if diff := cmp.Diff(wantTrace, res.Trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}

	wantTimeline := []model.Slice{
		{ProcessID: 1, Start: 0, End: 1},
		{ProcessID: 2, Start: 1, End: 4},
		{ProcessID: 1, Start: 4, End: 8},
	}
	if diff := cmp.Diff(wantTimeline, res.Timeline); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}

	p1, p2 := mustStats(t, res, 1), mustStats(t, res, 2)
	if p1.Completion != 8 || p1.Waiting != 3 || p1.Preemptions != 1 {
		t.Errorf("P1 = completion %d waiting %d preemptions %d, want 8/3/1", p1.Completion, p1.Waiting, p1.Preemptions)
	}
	if p2.Completion != 4 || p2.Waiting != 0 || p2.Response != 0 {
		t.Errorf("P2 = completion %d waiting %d response %d, want 4/0/0", p2.Completion, p2.Waiting, p2.Response)
	}
	if res.Stats.ContextSwitches != 3 {
		t.Errorf("ContextSwitches = %d, want 3", res.Stats.ContextSwitches)
	}
	if res.Stats.AverageWaiting != 1.5 {
		t.Errorf("AverageWaiting = %v, want 1.5", res.Stats.AverageWaiting)
	}
}

func TestEngine_SingleProcess(t *testing.T) {
	res := run(t, []model.ProcessSpec{spec(1, 0, 7, 3)}, DefaultConfig())

	ps := mustStats(t, res, 1)
	if ps.Waiting != 0 {
		t.Errorf("Waiting = %d, want 0", ps.Waiting)
	}
	if ps.Turnaround != 7 {
		t.Errorf("Turnaround = %d, want 7", ps.Turnaround)
	}
	// The process keeps the CPU across quantum boundaries.
	want := []model.TraceEvent{dispatch(1, 0), complete(1, 0, 7)}
	if diff := cmp.Diff(want, res.Trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
	if res.Ticks != 2 {
		t.Errorf("Ticks = %d, want 2", res.Ticks)
	}
	if res.Stats.Utilization != 1 {
		t.Errorf("Utilization = %v, want 1", res.Stats.Utilization)
	}
}

func TestEngine_EqualPriorityTieBreak(t *testing.T) {
	res := run(t, []model.ProcessSpec{spec(3, 0, 2, 1), spec(1, 0, 2, 1), spec(2, 0, 2, 1)}, DefaultConfig())

	want := []model.TraceEvent{
		dispatch(1, 0), complete(1, 0, 2),
		dispatch(2, 2), complete(2, 2, 4),
		dispatch(3, 4), complete(3, 4, 6),
	}
	if diff := cmp.Diff(want, res.Trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_EarlierArrivalWinsTie(t *testing.T) {
	// P2 arrives first; the later, lower-id P1 has the same priority and
	// must not preempt.
	res := run(t, []model.ProcessSpec{spec(1, 1, 2, 1), spec(2, 0, 3, 1)}, DefaultConfig())

	want := []model.TraceEvent{
		dispatch(2, 0), complete(2, 0, 3),
		dispatch(1, 3), complete(1, 3, 5),
	}
	if diff := cmp.Diff(want, res.Trace); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_IdleGaps(t *testing.T) {
	res := run(t, []model.ProcessSpec{spec(1, 3, 2, 1), spec(2, 8, 3, 1)}, DefaultConfig())

	want := []model.Slice{
		{ProcessID: model.NoProcess, Start: 0, End: 3, Idle: true},
		{ProcessID: 1, Start: 3, End: 5},
		{ProcessID: model.NoProcess, Start: 5, End: 8, Idle: true},
		{ProcessID: 2, Start: 8, End: 11},
	}
	if diff := cmp.Diff(want, res.Timeline); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}
	s := res.Stats
	if s.BusyTime != 5 || s.IdleTime != 6 || s.Elapsed != 11 {
		t.Errorf("busy/idle/elapsed = %d/%d/%d, want 5/6/11", s.BusyTime, s.IdleTime, s.Elapsed)
	}
	if s.Utilization != 5.0/11.0 {
		t.Errorf("Utilization = %v, want %v", s.Utilization, 5.0/11.0)
	}
}

func TestEngine_RetainAgedPriority(t *testing.T) {
	specs := []model.ProcessSpec{spec(1, 0, 2, 4), spec(2, 0, 5, 1)}
	cfg := Config{Quantum: 1, Aging: aging.Config{Interval: 1, Step: 1}}

	reset := run(t, specs, cfg)
	if got := mustStats(t, reset, 1).Completion; got != 7 {
		t.Errorf("reset: P1 completion = %d, want 7", got)
	}
	if got := mustStats(t, reset, 2).Completion; got != 6 {
		t.Errorf("reset: P2 completion = %d, want 6", got)
	}
	if reset.Stats.Preemptions != 2 {
		t.Errorf("reset: Preemptions = %d, want 2", reset.Stats.Preemptions)
	}

	cfg.RetainAgedPriority = true
	retain := run(t, specs, cfg)
	if got := mustStats(t, retain, 1).Completion; got != 6 {
		t.Errorf("retain: P1 completion = %d, want 6", got)
	}
	if got := mustStats(t, retain, 2).Completion; got != 7 {
		t.Errorf("retain: P2 completion = %d, want 7", got)
	}
	if retain.Stats.Preemptions != 1 {
		t.Errorf("retain: Preemptions = %d, want 1", retain.Stats.Preemptions)
	}
}

// starvationWorkload is a low-priority process competing with a stream of
// urgent processes that keeps the CPU busy until t=60.
func starvationWorkload() []model.ProcessSpec {
	specs := []model.ProcessSpec{spec(100, 0, 2, 10)}
	for i := 0; i < 30; i++ {
		specs = append(specs, spec(model.ProcessID(i+1), int64(2*i), 2, 1))
	}
	return specs
}

func TestEngine_NoStarvationWithAging(t *testing.T) {
	agingCfg := aging.Config{Interval: 3, Step: 3}

	res := run(t, starvationWorkload(), Config{Quantum: 4, Aging: agingCfg})
	low := mustStats(t, res, 100)
	if low.Completion != 12 {
		t.Errorf("low-priority completion = %d, want 12", low.Completion)
	}
	bound := aging.TimeToCap(agingCfg, 10) + 2
	if low.Waiting > bound {
		t.Errorf("low-priority waiting = %d, exceeds bound %d", low.Waiting, bound)
	}

	starved := run(t, starvationWorkload(), Config{Quantum: 4})
	low = mustStats(t, starved, 100)
	if low.Completion != 62 || low.Waiting != 60 {
		t.Errorf("without aging: completion %d waiting %d, want 62/60", low.Completion, low.Waiting)
	}
}

func TestEngine_AgingExpression(t *testing.T) {
	cfg := Config{Quantum: 4, Aging: aging.Config{Expression: "queued - Math.floor(waited / 3) * 3"}}
	res := run(t, starvationWorkload(), cfg)
	if got := mustStats(t, res, 100).Completion; got != 12 {
		t.Errorf("low-priority completion = %d, want 12", got)
	}
}

func randomWorkload(rng *rand.Rand) []model.ProcessSpec {
	n := 1 + rng.Intn(12)
	specs := make([]model.ProcessSpec, 0, n)
	for i := 0; i < n; i++ {
		specs = append(specs, spec(model.ProcessID(i+1), int64(rng.Intn(30)), int64(1+rng.Intn(9)), rng.Intn(8)))
	}
	return specs
}

func TestEngine_ConservationProperties(t *testing.T) {
	configs := []Config{
		{Quantum: 1},
		{Quantum: 4},
		{Quantum: 3, Aging: aging.Config{Interval: 2, Step: 1}},
		{Quantum: 2, Aging: aging.Config{Interval: 1, Step: 2, Cap: 1}, RetainAgedPriority: true},
	}
	for seed := int64(1); seed <= 40; seed++ {
		rng := rand.New(rand.NewSource(seed))
		specs := randomWorkload(rng)
		for ci, cfg := range configs {
			res := run(t, specs, cfg)

			var sumBurst, sumTurn, sumWaitBurst int64
			for _, s := range specs {
				ps := mustStats(t, res, s.ID)
				if !ps.Completed {
					t.Fatalf("seed %d cfg %d: process %d not completed", seed, ci, s.ID)
				}
				if ps.Response < 0 || ps.Response > ps.Waiting {
					t.Errorf("seed %d cfg %d: process %d response %d outside [0, waiting %d]", seed, ci, s.ID, ps.Response, ps.Waiting)
				}
				sumBurst += s.Burst
				sumTurn += ps.Turnaround
				sumWaitBurst += ps.Waiting + s.Burst
			}
			if sumTurn != sumWaitBurst {
				t.Errorf("seed %d cfg %d: Σturnaround %d != Σ(waiting+burst) %d", seed, ci, sumTurn, sumWaitBurst)
			}
			if res.Stats.BusyTime != sumBurst {
				t.Errorf("seed %d cfg %d: busy %d != Σburst %d", seed, ci, res.Stats.BusyTime, sumBurst)
			}
			if res.Stats.BusyTime+res.Stats.IdleTime != res.Clock {
				t.Errorf("seed %d cfg %d: busy+idle %d != clock %d", seed, ci, res.Stats.BusyTime+res.Stats.IdleTime, res.Clock)
			}

			var dispatches int
			for _, ev := range res.Trace {
				if ev.Type == model.EventDispatch {
					dispatches++
				}
			}
			if dispatches != res.Stats.ContextSwitches {
				t.Errorf("seed %d cfg %d: %d dispatch events, %d context switches", seed, ci, dispatches, res.Stats.ContextSwitches)
			}

			var covered int64
			for i, sl := range res.Timeline {
				if sl.Len() <= 0 {
					t.Errorf("seed %d cfg %d: empty slice %+v", seed, ci, sl)
				}
				if i > 0 && res.Timeline[i-1].End != sl.Start {
					t.Errorf("seed %d cfg %d: gap between slices %d and %d", seed, ci, i-1, i)
				}
				covered += sl.Len()
			}
			if covered != res.Clock {
				t.Errorf("seed %d cfg %d: timeline covers %d, clock %d", seed, ci, covered, res.Clock)
			}
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	specs := randomWorkload(rng)
	cfg := Config{Quantum: 2, Aging: aging.Config{Interval: 2, Step: 1}}

	first := run(t, specs, cfg)
	second := run(t, specs, cfg)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}
}

func TestNew_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		specs []model.ProcessSpec
		cfg   Config
		check func(error) bool
	}{
		{"zero id", []model.ProcessSpec{spec(0, 0, 1, 1)}, DefaultConfig(), isInvalidProcess("id")},
		{"negative arrival", []model.ProcessSpec{spec(1, -1, 1, 1)}, DefaultConfig(), isInvalidProcess("arrival")},
		{"zero burst", []model.ProcessSpec{spec(1, 0, 0, 1)}, DefaultConfig(), isInvalidProcess("burst")},
		{"negative priority", []model.ProcessSpec{spec(1, 0, 1, -1)}, DefaultConfig(), isInvalidProcess("priority")},
		{"duplicate id", []model.ProcessSpec{spec(1, 0, 1, 1), spec(1, 2, 1, 1)}, DefaultConfig(), func(err error) bool {
			var dup *model.DuplicateIDError
			return errors.As(err, &dup) && dup.ID == 1
		}},
		{"zero quantum", []model.ProcessSpec{spec(1, 0, 1, 1)}, Config{}, isConfigError("quantum")},
		{"negative max ticks", []model.ProcessSpec{spec(1, 0, 1, 1)}, Config{Quantum: 1, MaxTicks: -1}, isConfigError("max_ticks")},
		{"negative aging interval", []model.ProcessSpec{spec(1, 0, 1, 1)}, Config{Quantum: 1, Aging: aging.Config{Interval: -2}}, isConfigError("aging.interval")},
		{"bad aging expression", []model.ProcessSpec{spec(1, 0, 1, 1)}, Config{Quantum: 1, Aging: aging.Config{Expression: "'x'"}}, isConfigError("aging.expression")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.specs, tt.cfg, testLogger())
			if e != nil {
				t.Error("expected nil engine on error")
			}
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func isInvalidProcess(field string) func(error) bool {
	return func(err error) bool {
		var ip *model.InvalidProcessError
		return errors.As(err, &ip) && ip.Field == field
	}
}

func isConfigError(field string) func(error) bool {
	return func(err error) bool {
		var ce *model.ConfigError
		return errors.As(err, &ce) && ce.Field == field
	}
}

func TestEngine_MaxTicksReturnsPartialResult(t *testing.T) {
	e := newEngine(t, []model.ProcessSpec{spec(1, 0, 5, 2), spec(2, 1, 3, 1)}, Config{Quantum: 4, MaxTicks: 2})

	res, err := e.Run(context.Background())
	var mte *model.MaxTicksExceededError
	if !errors.As(err, &mte) {
		t.Fatalf("err = %v, want MaxTicksExceededError", err)
	}
	if mte.MaxTicks != 2 || mte.Clock != 4 {
		t.Errorf("error = %+v, want MaxTicks 2 at clock 4", mte)
	}
	if res == nil {
		t.Fatal("expected partial result")
	}
	if len(res.Trace) != 4 {
		t.Errorf("partial trace has %d events, want 4", len(res.Trace))
	}
	if res.State.IsTerminal() {
		t.Errorf("State = %s, want non-terminal", res.State)
	}
	if p1 := mustStats(t, res, 1); p1.Completed || p1.Waiting != 3 {
		t.Errorf("P1 = completed %v waiting %d, want false/3", p1.Completed, p1.Waiting)
	}
}

func TestEngine_DefaultMaxTicks(t *testing.T) {
	specs := []model.ProcessSpec{spec(1, 0, 5, 2), spec(2, 10, 3, 1)}
	if got, want := DefaultMaxTicks(specs), 4*(8+2)+10+16; got != want {
		t.Errorf("DefaultMaxTicks = %d, want %d", got, want)
	}
	e := newEngine(t, specs, DefaultConfig())
	if e.Config().MaxTicks != DefaultMaxTicks(specs) {
		t.Errorf("MaxTicks = %d, want default", e.Config().MaxTicks)
	}
}

func TestDefaultMaxTicks_Saturates(t *testing.T) {
	tests := []struct {
		name  string
		specs []model.ProcessSpec
	}{
		{"huge burst", []model.ProcessSpec{spec(1, 0, 1<<61, 1)}},
		{"burst sum", []model.ProcessSpec{spec(1, 0, math.MaxInt64, 1), spec(2, 0, math.MaxInt64, 1)}},
		{"late arrival", []model.ProcessSpec{spec(1, math.MaxInt64-1, 1, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultMaxTicks(tt.specs); got != math.MaxInt {
				t.Errorf("DefaultMaxTicks = %d, want math.MaxInt", got)
			}
		})
	}
}

func TestEngine_HugeBurstCompletes(t *testing.T) {
	res := run(t, []model.ProcessSpec{spec(1, 0, 1<<61, 1)}, Config{Quantum: 1 << 61})
	if res.Ticks != 1 {
		t.Errorf("Ticks = %d, want 1", res.Ticks)
	}
	if p1 := mustStats(t, res, 1); p1.Completion != 1<<61 || p1.Waiting != 0 {
		t.Errorf("P1 = completion %d waiting %d, want %d/0", p1.Completion, p1.Waiting, int64(1<<61))
	}
}

func TestEngine_TickSnapshots(t *testing.T) {
	e := newEngine(t, []model.ProcessSpec{spec(1, 0, 5, 2), spec(2, 1, 3, 1)}, DefaultConfig())
	ctx := context.Background()

	snap, err := e.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick 1: %v", err)
	}
	want := model.Snapshot{
		Tick: 1, Clock: 1, State: model.EngineStateRunning, Running: 1,
		Waiting: []model.ProcessID{}, Events: []model.TraceEvent{dispatch(1, 0)}, Total: 2,
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("tick 1 snapshot (-want +got):\n%s", diff)
	}

	snap, err = e.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick 2: %v", err)
	}
	want = model.Snapshot{
		Tick: 2, Clock: 4, State: model.EngineStateRunning, Running: model.NoProcess,
		Waiting:   []model.ProcessID{1},
		Events:    []model.TraceEvent{preempt(1, 0, 1), dispatch(2, 1), complete(2, 1, 4)},
		Completed: 1, Total: 2,
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("tick 2 snapshot (-want +got):\n%s", diff)
	}

	if _, err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick 3: %v", err)
	}
	if e.State() != model.EngineStateCompleted {
		t.Fatalf("State = %s, want COMPLETED", e.State())
	}

	// Further ticks are no-ops.
	snap, err = e.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick after completion: %v", err)
	}
	if snap.Tick != 3 || len(snap.Events) != 0 || e.Clock() != 8 {
		t.Errorf("tick after completion changed state: %+v", snap)
	}
}

func TestEngine_HeapCorruptionHalts(t *testing.T) {
	e := newEngine(t, []model.ProcessSpec{spec(1, 0, 4, 1), spec(2, 0, 4, 2), spec(3, 0, 4, 3)}, Config{Quantum: 1})
	ctx := context.Background()
	if _, err := e.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// Change a waiting key behind the heap's back.
	top, ok := e.heap.PeekTop()
	if !ok {
		t.Fatal("expected waiting processes")
	}
	top.EffectivePriority = 99

	_, err := e.Tick(ctx)
	var corrupt *model.HeapCorruptionError
	if !errors.As(err, &corrupt) {
		t.Fatalf("err = %v, want HeapCorruptionError", err)
	}
	if _, again := e.Tick(ctx); !errors.Is(again, err) {
		t.Errorf("halted engine returned %v, want the same error", again)
	}
	res, runErr := e.Run(ctx)
	if !errors.As(runErr, &corrupt) || res == nil {
		t.Errorf("Run on halted engine = %v, %v", res, runErr)
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	e := newEngine(t, []model.ProcessSpec{spec(1, 0, 5, 1)}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil || res.Ticks != 0 {
		t.Errorf("result = %+v, want empty partial result", res)
	}
}

func TestEngine_NoProcesses(t *testing.T) {
	res := run(t, nil, DefaultConfig())
	if res.Ticks != 0 || len(res.Trace) != 0 {
		t.Errorf("empty run = %+v", res)
	}
}

func TestConfigFromWorkload(t *testing.T) {
	w := &model.Workload{
		MaxTicks:           50,
		RetainAgedPriority: true,
		Aging:              model.AgingSpec{Interval: 5, Step: 2, Cap: 1},
	}
	want := Config{Quantum: DefaultQuantum, MaxTicks: 50, RetainAgedPriority: true, Aging: aging.Config{Interval: 5, Step: 2, Cap: 1}}
	if diff := cmp.Diff(want, ConfigFromWorkload(w)); diff != "" {
		t.Errorf("ConfigFromWorkload (-want +got):\n%s", diff)
	}

	w.Quantum = 7
	if got := ConfigFromWorkload(w).Quantum; got != 7 {
		t.Errorf("Quantum = %d, want 7", got)
	}
}

func TestEngine_Processes(t *testing.T) {
	e := newEngine(t, []model.ProcessSpec{spec(2, 0, 1, 1), {ID: 1, Name: "shell", Burst: 1}}, DefaultConfig())
	procs := e.Processes()
	if len(procs) != 2 || procs[0].ID != 1 || procs[0].Name != "shell" || procs[1].Name != "P2" {
		t.Errorf("Processes() = %+v", procs)
	}
}
