package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/me/gosched/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string, created time.Time) *model.Run {
	return &model.Run{
		ID:    id,
		Name:  "two-process",
		State: model.RunStateCompleted,
		Workload: model.Workload{
			Name:    "two-process",
			Quantum: 4,
			Processes: []model.ProcessSpec{
				{ID: 1, Name: "P1", Arrival: 0, Burst: 5, Priority: 2},
				{ID: 2, Name: "P2", Arrival: 1, Burst: 3, Priority: 1},
			},
		},
		Result: &model.Result{
			State: model.EngineStateCompleted,
			Ticks: 3,
			Clock: 8,
			Trace: []model.TraceEvent{
				{ProcessID: 1, StartTime: 0, EndTime: 0, Type: model.EventDispatch},
				{ProcessID: 1, StartTime: 0, EndTime: 1, Type: model.EventPreempt},
			},
			Timeline: []model.Slice{{ProcessID: 1, Start: 0, End: 1}},
			Stats: model.Stats{
				Completed:         2,
				AverageWaiting:    1.5,
				AverageTurnaround: 5.5,
				ContextSwitches:   3,
				Utilization:       1,
			},
		},
		CreatedAt: created,
	}
}

func TestRunCRUD(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	run := sampleRun("run_test-1", now)
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}

	if err := st.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	got, err = st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "run_nonexistent")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent run")
	}
}

func TestDeleteRun_NotFound(t *testing.T) {
	st := testStore(t)
	err := st.DeleteRun(context.Background(), "run_nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateRun_FillsIDAndAbortedWithoutResult(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	run := &model.Run{Name: "broken", State: model.RunStateFailed, Error: "heap corruption during update-key: x"}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if !strings.HasPrefix(run.ID, "run_") {
		t.Errorf("ID = %q, want run_ prefix", run.ID)
	}
	if run.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil || got == nil {
		t.Fatalf("GetRun: %v, %v", got, err)
	}
	if got.Result != nil {
		t.Errorf("Result = %+v, want nil", got.Result)
	}
	if got.State != model.RunStateFailed || got.Error != run.Error {
		t.Errorf("state/error = %s/%q", got.State, got.Error)
	}
}

func TestListRuns(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		run := sampleRun(fmt.Sprintf("run_%d", i), base.Add(time.Duration(i)*time.Minute))
		if i == 4 {
			run.State = model.RunStateAborted
			run.Name = "runaway"
		}
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun %d: %v", i, err)
		}
	}

	runs, total, err := st.ListRuns(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 || len(runs) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(runs))
	}
	if runs[0].ID != "run_4" || runs[1].ID != "run_3" {
		t.Errorf("order = %s, %s; want newest first", runs[0].ID, runs[1].ID)
	}
	if runs[1].Processes != 2 || runs[1].Ticks != 3 || runs[1].AverageWaiting != 1.5 {
		t.Errorf("summary = %+v", runs[1])
	}

	runs, total, err = st.ListRuns(ctx, model.ListOptions{Limit: 10, State: string(model.RunStateAborted)})
	if err != nil {
		t.Fatalf("ListRuns by state: %v", err)
	}
	if total != 1 || len(runs) != 1 || runs[0].Name != "runaway" {
		t.Errorf("state filter = %d %+v", total, runs)
	}

	runs, total, err = st.ListRuns(ctx, model.ListOptions{Limit: 10, Offset: 3, Name: "two-process"})
	if err != nil {
		t.Fatalf("ListRuns by name: %v", err)
	}
	if total != 4 || len(runs) != 1 || runs[0].ID != "run_0" {
		t.Errorf("name filter with offset = %d %+v", total, runs)
	}
}

func TestListRuns_Empty(t *testing.T) {
	st := testStore(t)
	runs, total, err := st.ListRuns(context.Background(), model.DefaultListOptions())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 0 || runs == nil || len(runs) != 0 {
		t.Errorf("empty list = %d %#v, want 0 and non-nil empty slice", total, runs)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	for _, col := range []string{"utilization", "context_switches"} {
		ok, err := columnExists(ctx, st.db, "runs", col)
		if err != nil || !ok {
			t.Errorf("column %s: exists=%v err=%v", col, ok, err)
		}
	}
}
