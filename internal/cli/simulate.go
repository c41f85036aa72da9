package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/me/gosched/internal/scheduler"
	"github.com/me/gosched/internal/store"
	"github.com/me/gosched/internal/workload"
	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

type simulateOptions struct {
	quantum       int64
	maxTicks      int
	agingInterval int64
	agingStep     int
	agingCap      int
	agingExpr     string
	retainAged    bool
	verifyHeap    bool
	output        string
	steps         bool
	save          bool
	dbPath        string
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate <workload>",
		Short: "Run a workload file locally",
		Long: `Simulate a workload (.yaml, .yml, .json or .hcl) on the local machine and
print the execution trace, the processor timeline and statistics.

Flags override the engine settings of the workload file. With --save the
outcome is archived in a local SQLite database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validOutput(opts.output) {
				return fmt.Errorf("invalid --output %q (want text, json or yaml)", opts.output)
			}

			w, err := workload.NewParser(logger).ParseFile(args[0])
			if err != nil {
				return err
			}
			opts.apply(cmd, w)

			if apiErr := workload.NewValidator(logger).Validate(w); apiErr != nil {
				printFieldErrors(cmd.ErrOrStderr(), apiErr)
				return apiErr
			}

			cfg := scheduler.ConfigFromWorkload(w)
			cfg.VerifyHeap = opts.verifyHeap
			eng, err := scheduler.New(w.Processes, cfg, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var (
				res    *model.Result
				runErr error
			)
			if opts.steps {
				res, runErr = stepThrough(cmd.Context(), eng, w, out)
			} else {
				res, runErr = eng.Run(cmd.Context())
			}

			if opts.output == outputText {
				fmt.Fprintf(out, "Workload: %s (%d processes, quantum %d, aging %s)\n\n",
					w.Name, len(w.Processes), eng.Config().Quantum, agingLabel(w.Aging))
				renderResult(out, res)
			} else if err := writeStructured(out, opts.output, res); err != nil {
				return err
			}

			if opts.save {
				id, err := archive(cmd.Context(), opts.dbPath, w, res, runErr)
				if err != nil {
					return fmt.Errorf("save run: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Run archived: %s\n", id)
			}

			if runErr != nil {
				return fmt.Errorf("simulation %s: %w", w.Name, runErr)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64Var(&opts.quantum, "quantum", 0, "Time quantum (overrides the workload)")
	f.IntVar(&opts.maxTicks, "max-ticks", 0, "Abort after this many ticks (0 = derived from the workload)")
	f.Int64Var(&opts.agingInterval, "aging-interval", 0, "Waiting time per aging step (0 disables linear aging)")
	f.IntVar(&opts.agingStep, "aging-step", 1, "Priority improvement per aging interval")
	f.IntVar(&opts.agingCap, "aging-cap", 0, "Most urgent priority aging may reach")
	f.StringVar(&opts.agingExpr, "aging-expr", "", "JavaScript expression computing the aged priority")
	f.BoolVar(&opts.retainAged, "retain-aged", false, "Keep the aged priority when a process is dispatched")
	f.BoolVar(&opts.verifyHeap, "verify-heap", false, "Check the heap invariant after every tick")
	f.StringVarP(&opts.output, "output", "o", outputText, "Output format (text, json, yaml)")
	f.BoolVar(&opts.steps, "steps", false, "Print a snapshot after every tick")
	f.BoolVar(&opts.save, "save", false, "Archive the run in a local SQLite database")
	f.StringVar(&opts.dbPath, "db", "", "SQLite database for --save (default ~/.gosched/gosched.db)")

	return cmd
}

// apply copies explicitly set flags onto the workload.
func (o *simulateOptions) apply(cmd *cobra.Command, w *model.Workload) {
	f := cmd.Flags()
	if f.Changed("quantum") {
		w.Quantum = o.quantum
	}
	if f.Changed("max-ticks") {
		w.MaxTicks = o.maxTicks
	}
	if f.Changed("aging-interval") {
		w.Aging.Interval = o.agingInterval
	}
	if f.Changed("aging-step") {
		w.Aging.Step = o.agingStep
	}
	if f.Changed("aging-cap") {
		w.Aging.Cap = o.agingCap
	}
	if f.Changed("aging-expr") {
		w.Aging.Expression = o.agingExpr
	}
	if f.Changed("retain-aged") {
		w.RetainAgedPriority = o.retainAged
	}
}

// stepThrough ticks the engine one decision at a time, printing every
// snapshot, and enforces the tick budget the same way Run does.
func stepThrough(ctx context.Context, eng *scheduler.Engine, w *model.Workload, out io.Writer) (*model.Result, error) {
	names := make(map[model.ProcessID]string, len(w.Processes))
	for _, s := range w.Processes {
		names[s.ID] = s.Label()
	}

	for !eng.State().IsTerminal() {
		if eng.Ticks() >= eng.Config().MaxTicks {
			return eng.Result(), &model.MaxTicksExceededError{MaxTicks: eng.Config().MaxTicks, Clock: eng.Clock()}
		}
		snap, err := eng.Tick(ctx)
		if err != nil {
			return eng.Result(), err
		}
		renderSnapshot(out, snap, names)
	}
	fmt.Fprintln(out)
	return eng.Result(), nil
}

func agingLabel(spec model.AgingSpec) string {
	switch {
	case spec.Disabled:
		return "off"
	case spec.Expression != "":
		return fmt.Sprintf("expression %q", spec.Expression)
	case spec.Interval > 0:
		step := spec.Step
		if step == 0 {
			step = 1
		}
		return fmt.Sprintf("-%d every %d down to %d", step, spec.Interval, spec.Cap)
	default:
		return "off"
	}
}

func printFieldErrors(w io.Writer, apiErr *model.APIError) {
	fmt.Fprintf(w, "%s:\n", apiErr.Message)
	for _, d := range apiErr.Details {
		field := d.Field
		if d.Path != "" {
			field = d.Path + "." + d.Field
		}
		fmt.Fprintf(w, "  - %s: %s\n", field, d.Message)
	}
}

// archive stores the outcome in the SQLite database at dbPath.
func archive(ctx context.Context, dbPath string, w *model.Workload, res *model.Result, runErr error) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".gosched", "gosched.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
	}

	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return "", err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return "", err
	}

	run := &model.Run{Name: w.Name, State: model.RunStateCompleted, Workload: *w, Result: res}
	var maxTicks *model.MaxTicksExceededError
	switch {
	case runErr == nil:
	case errors.As(runErr, &maxTicks):
		run.State = model.RunStateAborted
		run.Error = runErr.Error()
	default:
		run.State = model.RunStateFailed
		run.Error = runErr.Error()
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}
