package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/me/gosched/pkg/model"
)

func TestPacer_RunsToCompletion(t *testing.T) {
	e := newEngine(t, []model.ProcessSpec{spec(1, 0, 5, 2), spec(2, 1, 3, 1)}, DefaultConfig())
	p := NewPacer(e, time.Millisecond, testLogger())

	var snaps []model.Snapshot
	err := p.Start(context.Background(), func(s model.Snapshot) error {
		snaps = append(snaps, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	if last := snaps[len(snaps)-1]; last.State != model.EngineStateCompleted || last.Clock != 8 {
		t.Errorf("last snapshot = %+v", last)
	}
}

func TestPacer_CallbackErrorStops(t *testing.T) {
	e := newEngine(t, []model.ProcessSpec{spec(1, 0, 9, 1)}, Config{Quantum: 1})
	p := NewPacer(e, time.Millisecond, testLogger())

	boom := errors.New("client gone")
	err := p.Start(context.Background(), func(model.Snapshot) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if e.Ticks() != 1 {
		t.Errorf("Ticks = %d, want 1", e.Ticks())
	}
}

func TestPacer_Stop(t *testing.T) {
	e := newEngine(t, []model.ProcessSpec{spec(1, 0, 9, 1)}, DefaultConfig())
	p := NewPacer(e, time.Hour, testLogger())

	done := make(chan error, 1)
	go func() {
		done <- p.Start(context.Background(), func(model.Snapshot) error { return nil })
	}()

	// Stop blocks until Start has returned.
	time.Sleep(10 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start returned %v, want nil", err)
	}
}
