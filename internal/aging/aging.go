// Package aging implements the rules that improve the effective priority of
// waiting processes so that no process waits forever.
//
// Priorities follow the scheduler convention: lower values are more urgent,
// so aging only ever decreases a waiting process's effective priority.
package aging

import (
	"fmt"

	"github.com/me/gosched/pkg/model"
)

// Policy computes the effective priority a waiting process should have at
// time now. Implementations must be deterministic and must never return a
// value larger (less urgent) than the process's current effective priority.
type Policy interface {
	Adjust(p *model.Process, now int64) (int, error)
	Name() string
}

// Config selects and parameterises a policy. It is the aging block of a
// workload file.
type Config = model.AgingSpec

// New builds the policy described by spec.
// Disabled wins over everything else. An expression takes precedence over
// the linear parameters; a zero interval without an expression disables
// aging.
func New(spec Config) (Policy, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}
	switch {
	case spec.Disabled:
		return None{}, nil
	case spec.Expression != "":
		return NewExpression(spec.Expression, spec.Cap)
	case spec.Interval > 0:
		return Linear{Interval: spec.Interval, Step: stepOrDefault(spec.Step), Cap: spec.Cap}, nil
	default:
		return None{}, nil
	}
}

// Validate checks the numeric parameters of spec.
func Validate(spec Config) error {
	if spec.Interval < 0 {
		return &model.ConfigError{Field: "aging.interval", Reason: "must be >= 0"}
	}
	if spec.Step < 0 {
		return &model.ConfigError{Field: "aging.step", Reason: "must be >= 0"}
	}
	if spec.Cap < 0 {
		return &model.ConfigError{Field: "aging.cap", Reason: "must be >= 0"}
	}
	return nil
}

func stepOrDefault(step int) int {
	if step == 0 {
		return 1
	}
	return step
}

// None leaves priorities untouched.
type None struct{}

// Adjust returns the current effective priority.
func (None) Adjust(p *model.Process, _ int64) (int, error) {
	return p.EffectivePriority, nil
}

// Name returns "none".
func (None) Name() string { return "none" }

// Linear improves priority by Step for every full Interval waited since the
// process was queued, never past Cap.
//
// A process that has waited at least Interval units improves by Step at
// least once per Interval until it reaches Cap, which bounds its wait.
type Linear struct {
	Interval int64
	Step     int
	Cap      int
}

// Adjust implements Policy.
func (l Linear) Adjust(p *model.Process, now int64) (int, error) {
	if p.EnqueuedAt == model.Unset || now <= p.EnqueuedAt {
		return p.EffectivePriority, nil
	}
	waited := now - p.EnqueuedAt
	boost := int(waited/l.Interval) * l.Step
	return Clamp(p, p.QueuedPriority-boost, l.Cap), nil
}

// Name returns "linear".
func (l Linear) Name() string { return "linear" }

// String describes the parameters.
func (l Linear) String() string {
	return fmt.Sprintf("linear(interval=%d, step=%d, cap=%d)", l.Interval, l.Step, l.Cap)
}

// Clamp bounds a candidate priority for a waiting process: not below limit
// (unless the process already started below it), not above the priority
// its wait started from, and not above its current effective priority.
func Clamp(p *model.Process, candidate, limit int) int {
	floor := limit
	if p.QueuedPriority < floor {
		floor = p.QueuedPriority
	}
	if candidate < floor {
		candidate = floor
	}
	if candidate > p.QueuedPriority {
		candidate = p.QueuedPriority
	}
	if candidate > p.EffectivePriority {
		candidate = p.EffectivePriority
	}
	return candidate
}

// TimeToCap returns the longest a process queued at priority queued can
// wait under the linear rule before it reaches cap.
func TimeToCap(spec Config, queued int) int64 {
	if spec.Interval <= 0 || queued <= spec.Cap {
		return 0
	}
	step := stepOrDefault(spec.Step)
	levels := (queued - spec.Cap + step - 1) / step
	return int64(levels) * spec.Interval
}
