package scheduler

import (
	"fmt"
	"math"

	"github.com/me/gosched/internal/aging"
	"github.com/me/gosched/pkg/model"
)

// DefaultQuantum is the run length used when a workload does not set one.
const DefaultQuantum int64 = 4

// Config holds engine configuration.
type Config struct {
	// Quantum is the longest a dispatched process runs before the engine
	// reconsiders preemption.
	Quantum int64

	// MaxTicks aborts Run after this many ticks. Zero selects
	// DefaultMaxTicks for the process set.
	MaxTicks int

	Aging aging.Config

	// RetainAgedPriority keeps the aged priority when a process is
	// dispatched or re-queued instead of resetting it to base.
	RetainAgedPriority bool

	// VerifyHeap checks the full heap invariant after every tick.
	VerifyHeap bool
}

// DefaultConfig returns sensible defaults: quantum 4, no aging.
func DefaultConfig() Config {
	return Config{Quantum: DefaultQuantum}
}

// ConfigFromWorkload builds an engine configuration from a workload file,
// filling unset fields with defaults.
func ConfigFromWorkload(w *model.Workload) Config {
	cfg := DefaultConfig()
	if w.Quantum > 0 {
		cfg.Quantum = w.Quantum
	}
	cfg.MaxTicks = w.MaxTicks
	cfg.Aging = w.Aging
	cfg.RetainAgedPriority = w.RetainAgedPriority
	return cfg
}

// DefaultMaxTicks returns a tick budget no correct run can exhaust. Every
// tick either executes at least one unit or jumps an idle gap, so
// Σburst + n ticks always suffice; the rest is headroom. The budget
// saturates at math.MaxInt instead of overflowing.
func DefaultMaxTicks(specs []model.ProcessSpec) int {
	var total, latest int64
	for _, s := range specs {
		total = satAdd(total, max(s.Burst, 0))
		latest = max(latest, s.Arrival)
	}
	budget := satAdd(total, int64(len(specs)))
	budget = satAdd(satAdd(budget, budget), satAdd(budget, budget))
	budget = satAdd(satAdd(budget, latest), 16)
	if budget > math.MaxInt {
		return math.MaxInt
	}
	return int(budget)
}

// satAdd adds two non-negative values, saturating at math.MaxInt64.
func satAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func (c Config) validate() error {
	if c.Quantum <= 0 {
		return &model.ConfigError{Field: "quantum", Reason: fmt.Sprintf("must be > 0, got %d", c.Quantum)}
	}
	if c.MaxTicks < 0 {
		return &model.ConfigError{Field: "max_ticks", Reason: fmt.Sprintf("must be >= 0, got %d", c.MaxTicks)}
	}
	return aging.Validate(c.Aging)
}

// validateSpecs rejects the whole process set on the first bad entry.
func validateSpecs(specs []model.ProcessSpec) error {
	seen := make(map[model.ProcessID]bool, len(specs))
	for _, s := range specs {
		switch {
		case s.ID <= 0:
			return &model.InvalidProcessError{ID: s.ID, Field: "id", Reason: "must be > 0"}
		case s.Arrival < 0:
			return &model.InvalidProcessError{ID: s.ID, Field: "arrival", Reason: fmt.Sprintf("must be >= 0, got %d", s.Arrival)}
		case s.Burst <= 0:
			return &model.InvalidProcessError{ID: s.ID, Field: "burst", Reason: fmt.Sprintf("must be > 0, got %d", s.Burst)}
		case s.Priority < 0:
			return &model.InvalidProcessError{ID: s.ID, Field: "priority", Reason: fmt.Sprintf("must be >= 0, got %d", s.Priority)}
		}
		if seen[s.ID] {
			return &model.DuplicateIDError{ID: s.ID}
		}
		seen[s.ID] = true
	}
	return nil
}
