package workload

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/gosched/internal/aging"
	"github.com/me/gosched/pkg/model"
)

// MaxProcesses bounds the size of a single workload.
const MaxProcesses = 10000

// Validator performs semantic validation on a decoded workload, collecting
// every problem instead of stopping at the first.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator with the given logger.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger.With("component", "validator")}
}

// Validate returns nil if w can be simulated, or an *model.APIError with
// FieldError details.
func (v *Validator) Validate(w *model.Workload) *model.APIError {
	var errs []model.FieldError

	errs = append(errs, v.validateEngine(w)...)
	errs = append(errs, v.validateAging(w.Aging)...)
	errs = append(errs, v.validateProcesses(w.Processes)...)

	if len(errs) == 0 {
		return nil
	}
	v.logger.Debug("workload rejected", "name", w.Name, "errors", len(errs))
	return model.NewValidationError("workload validation failed", errs...)
}

func (v *Validator) validateEngine(w *model.Workload) []model.FieldError {
	var errs []model.FieldError
	if w.Quantum < 0 {
		errs = append(errs, model.FieldError{Field: "quantum", Message: fmt.Sprintf("quantum must be >= 0, got %d", w.Quantum)})
	}
	if w.MaxTicks < 0 {
		errs = append(errs, model.FieldError{Field: "max_ticks", Message: fmt.Sprintf("max_ticks must be >= 0, got %d", w.MaxTicks)})
	}
	return errs
}

func (v *Validator) validateAging(spec model.AgingSpec) []model.FieldError {
	_, err := aging.New(spec)
	if err == nil {
		return nil
	}
	var cfgErr *model.ConfigError
	if errors.As(err, &cfgErr) {
		return []model.FieldError{{Field: cfgErr.Field, Message: cfgErr.Reason}}
	}
	return []model.FieldError{{Field: "aging", Message: err.Error()}}
}

func (v *Validator) validateProcesses(procs []model.ProcessSpec) []model.FieldError {
	if len(procs) == 0 {
		return []model.FieldError{{Field: "processes", Message: "workload must have at least one process"}}
	}
	if len(procs) > MaxProcesses {
		return []model.FieldError{{Field: "processes", Message: fmt.Sprintf("workload has %d processes, limit is %d", len(procs), MaxProcesses)}}
	}

	var errs []model.FieldError
	seen := make(map[model.ProcessID]int, len(procs))
	for i, p := range procs {
		path := fmt.Sprintf("processes[%d]", i)
		if p.ID <= 0 {
			errs = append(errs, model.FieldError{Field: "id", Path: path, Message: fmt.Sprintf("id must be > 0, got %d", p.ID)})
		} else if first, dup := seen[p.ID]; dup {
			errs = append(errs, model.FieldError{Field: "id", Path: path, Message: fmt.Sprintf("duplicate id %d (first used by processes[%d])", p.ID, first)})
		} else {
			seen[p.ID] = i
		}
		if p.Arrival < 0 {
			errs = append(errs, model.FieldError{Field: "arrival", Path: path, Message: fmt.Sprintf("arrival must be >= 0, got %d", p.Arrival)})
		}
		if p.Burst <= 0 {
			errs = append(errs, model.FieldError{Field: "burst", Path: path, Message: fmt.Sprintf("burst must be > 0, got %d", p.Burst)})
		}
		if p.Priority < 0 {
			errs = append(errs, model.FieldError{Field: "priority", Path: path, Message: fmt.Sprintf("priority must be >= 0, got %d", p.Priority)})
		}
	}
	return errs
}
