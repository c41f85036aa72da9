package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/me/gosched/pkg/model"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validOutput(s string) bool {
	return s == outputText || s == outputJSON || s == outputYAML
}

// writeStructured writes v as indented JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// processNames maps ids to display names from the stats of a result.
func processNames(res *model.Result) map[model.ProcessID]string {
	names := make(map[model.ProcessID]string, len(res.Stats.Processes))
	for _, ps := range res.Stats.Processes {
		names[ps.ID] = ps.Name
	}
	return names
}

func nameOf(names map[model.ProcessID]string, id model.ProcessID) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("P%d", id)
}

// renderResult prints the trace table, the Gantt timeline and statistics.
func renderResult(w io.Writer, res *model.Result) {
	names := processNames(res)

	fmt.Fprintf(w, "Trace (%d events, %d ticks):\n", len(res.Trace), res.Ticks)
	fmt.Fprintf(w, "  %-10s  %-10s  %-8s  %s\n", "EVENT", "PROCESS", "START", "END")
	for _, ev := range res.Trace {
		fmt.Fprintf(w, "  %-10s  %-10s  %-8d  %d\n", ev.Type, nameOf(names, ev.ProcessID), ev.StartTime, ev.EndTime)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Timeline:")
	bar, axis := gantt(res.Timeline, names)
	fmt.Fprintf(w, "  %s\n  %s\n", bar, axis)

	fmt.Fprintln(w)
	renderStats(w, res.Stats)
}

// gantt draws the timeline as a bar of labelled cells with a time axis
// underneath, e.g.
//
//	|  P1  |  P2  |idle|
//	0      4      9    12
func gantt(timeline []model.Slice, names map[model.ProcessID]string) (string, string) {
	if len(timeline) == 0 {
		return "(empty)", ""
	}
	var bar, axis strings.Builder
	bar.WriteString("|")
	axis.WriteString(strconv.FormatInt(timeline[0].Start, 10))

	for _, s := range timeline {
		label := "idle"
		if !s.Idle {
			label = nameOf(names, s.ProcessID)
		}
		end := strconv.FormatInt(s.End, 10)
		width := max(len(label)+2, len(end)+1, int(min(s.Len(), 12)))
		pad := width - len(label)
		bar.WriteString(strings.Repeat(" ", pad/2) + label + strings.Repeat(" ", pad-pad/2) + "|")

		target := bar.Len() - len(end)
		if gap := target - axis.Len(); gap > 0 {
			axis.WriteString(strings.Repeat(" ", gap))
		} else {
			axis.WriteString(" ")
		}
		axis.WriteString(end)
	}
	return bar.String(), axis.String()
}

func renderStats(w io.Writer, st model.Stats) {
	fmt.Fprintln(w, "Processes:")
	fmt.Fprintf(w, "  %-10s  %7s  %5s  %8s  %10s  %7s  %10s  %8s  %7s\n",
		"PROCESS", "ARRIVAL", "BURST", "PRIORITY", "COMPLETION", "WAITING", "TURNAROUND", "RESPONSE", "PREEMPT")
	for _, ps := range st.Processes {
		fmt.Fprintf(w, "  %-10s  %7d  %5d  %8d  %10s  %7d  %10s  %8s  %7d\n",
			ps.Name, ps.Arrival, ps.Burst, ps.Priority,
			optional(ps.Completion), ps.Waiting, optional(ps.Turnaround), optional(ps.Response), ps.Preemptions)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Completed:          %d/%d\n", st.Completed, len(st.Processes))
	fmt.Fprintf(w, "Average waiting:    %.2f\n", st.AverageWaiting)
	fmt.Fprintf(w, "Average turnaround: %.2f\n", st.AverageTurnaround)
	fmt.Fprintf(w, "Average response:   %.2f\n", st.AverageResponse)
	fmt.Fprintf(w, "Max waiting:        %d\n", st.MaxWaiting)
	fmt.Fprintf(w, "Context switches:   %d (%d preemptions)\n", st.ContextSwitches, st.Preemptions)
	fmt.Fprintf(w, "CPU utilization:    %.1f%% (busy %d, idle %d, elapsed %d)\n",
		st.Utilization*100, st.BusyTime, st.IdleTime, st.Elapsed)
	fmt.Fprintf(w, "Throughput:         %.3f processes/unit\n", st.Throughput)
}

// optional renders an Unset time as "-".
func optional(v int64) string {
	if v == model.Unset {
		return "-"
	}
	return strconv.FormatInt(v, 10)
}

// renderSnapshot prints one line per tick for --steps.
func renderSnapshot(w io.Writer, snap model.Snapshot, names map[model.ProcessID]string) {
	running := "-"
	if snap.Running != model.NoProcess {
		running = nameOf(names, snap.Running)
	}
	waiting := make([]string, 0, len(snap.Waiting))
	for _, id := range snap.Waiting {
		waiting = append(waiting, nameOf(names, id))
	}
	var events []string
	for _, ev := range snap.Events {
		events = append(events, fmt.Sprintf("%s %s", ev.Type, nameOf(names, ev.ProcessID)))
	}
	fmt.Fprintf(w, "tick %-4d t=%-6d %-10s running=%-10s waiting=[%s]", snap.Tick, snap.Clock, snap.State, running, strings.Join(waiting, " "))
	if len(events) > 0 {
		fmt.Fprintf(w, "  %s", strings.Join(events, ", "))
	}
	fmt.Fprintln(w)
}
