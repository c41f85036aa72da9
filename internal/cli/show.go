package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validOutput(output) {
				return fmt.Errorf("invalid --output %q (want text, json or yaml)", output)
			}
			id := args[0]

			resp, err := client.Get(cmd.Context(), "/api/v1/runs/"+id)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}

			var run model.Run
			if err := json.Unmarshal(resp.Data, &run); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if output != outputText {
				return writeStructured(out, output, run)
			}

			fmt.Fprintf(out, "Run: %s\n", run.ID)
			fmt.Fprintf(out, "  Workload: %s (%d processes, quantum %d, aging %s)\n",
				run.Name, len(run.Workload.Processes), run.Workload.Quantum, agingLabel(run.Workload.Aging))
			fmt.Fprintf(out, "  State:    %s\n", run.State)
			if run.Error != "" {
				fmt.Fprintf(out, "  Error:    %s\n", run.Error)
			}
			fmt.Fprintf(out, "  Created:  %s (%s)\n", run.CreatedAt.Format("2006-01-02 15:04:05"), humanize.Time(run.CreatedAt))
			if run.Result != nil {
				fmt.Fprintln(out)
				renderResult(out, run.Result)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run_id>",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Delete(cmd.Context(), "/api/v1/runs/"+args[0]); err != nil {
				return fmt.Errorf("delete run: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s deleted.\n", args[0])
			return nil
		},
	}
}
