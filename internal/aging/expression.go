package aging

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/me/gosched/pkg/model"
)

// Expression evaluates a JavaScript expression to compute the effective
// priority. The expression sees these variables:
//
//	base, queued, effective  priorities of the process
//	waited, now              time waited since queued, current time
//	arrival, burst, remaining
//
// The result is floored and passed through Clamp, so a user expression can
// never make a waiting process less urgent. Math.random and Date are
// removed to keep runs reproducible. A single evaluation is interrupted
// after ExpressionTimeout.
type Expression struct {
	source  string
	limit   int
	timeout time.Duration
	prog    *goja.Program
	vm      *goja.Runtime
}

// ExpressionTimeout bounds one evaluation of an aging expression.
var ExpressionTimeout = 100 * time.Millisecond

// NewExpression compiles src and dry-runs it once.
func NewExpression(src string, limit int) (*Expression, error) {
	prog, err := goja.Compile("aging", "("+src+"\n)", true)
	if err != nil {
		return nil, &model.ConfigError{Field: "aging.expression", Reason: fmt.Sprintf("does not compile: %v", err)}
	}
	vm := goja.New()
	if err := sandbox(vm); err != nil {
		return nil, fmt.Errorf("prepare aging runtime: %w", err)
	}
	e := &Expression{source: src, limit: limit, timeout: ExpressionTimeout, prog: prog, vm: vm}

	probe := model.NewProcess(model.ProcessSpec{ID: 1, Burst: 1, Priority: limit + 10})
	probe.EnqueuedAt = 0
	if _, err := e.Adjust(probe, 1); err != nil {
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &model.ConfigError{Field: "aging.expression", Reason: err.Error()}
	}
	return e, nil
}

func sandbox(vm *goja.Runtime) error {
	mathObj := vm.Get("Math").ToObject(vm)
	if err := mathObj.Set("random", goja.Undefined()); err != nil {
		return err
	}
	return vm.Set("Date", goja.Undefined())
}

// Adjust implements Policy.
func (e *Expression) Adjust(p *model.Process, now int64) (int, error) {
	if p.EnqueuedAt == model.Unset || now <= p.EnqueuedAt {
		return p.EffectivePriority, nil
	}
	vars := map[string]any{
		"base":      p.BasePriority,
		"queued":    p.QueuedPriority,
		"effective": p.EffectivePriority,
		"waited":    now - p.EnqueuedAt,
		"now":       now,
		"arrival":   p.Arrival,
		"burst":     p.Burst,
		"remaining": p.Remaining,
	}
	for k, v := range vars {
		if err := e.vm.Set(k, v); err != nil {
			return 0, fmt.Errorf("set %s: %w", k, err)
		}
	}

	val, err := e.run()
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return 0, &model.ConfigError{Field: "aging.expression", Reason: fmt.Sprintf("evaluation exceeded %s", e.timeout)}
		}
		return 0, fmt.Errorf("evaluate %q: %w", e.source, err)
	}

	var f float64
	switch v := val.Export().(type) {
	case int64:
		f = float64(v)
	case float64:
		f = v
	default:
		return 0, fmt.Errorf("expression %q returned %T, want a number", e.source, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("expression %q returned %v", e.source, f)
	}
	return Clamp(p, int(math.Floor(f)), e.limit), nil
}

// run evaluates the program with the interrupt armed. The interrupt can
// only fire while the program is still running, and is cleared afterwards
// so the runtime stays usable.
func (e *Expression) run() (goja.Value, error) {
	var mu sync.Mutex
	done := false
	timer := time.AfterFunc(e.timeout, func() {
		mu.Lock()
		defer mu.Unlock()
		if !done {
			e.vm.Interrupt("aging expression timed out")
		}
	})
	val, err := e.vm.RunProgram(e.prog)
	mu.Lock()
	done = true
	mu.Unlock()
	timer.Stop()
	e.vm.ClearInterrupt()
	return val, err
}

// Name returns "expression".
func (e *Expression) Name() string { return "expression" }

// Source returns the expression text.
func (e *Expression) Source() string { return e.source }
