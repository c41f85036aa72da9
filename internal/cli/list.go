package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		state  string
		name   string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if state != "" {
				q.Set("state", state)
			}
			if name != "" {
				q.Set("name", name)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/v1/runs"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := client.Get(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			var runs []model.RunSummary
			if err := json.Unmarshal(resp.Data, &runs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-10s  %-20s  %5s  %8s  %s\n", "ID", "STATE", "WORKLOAD", "PROCS", "AVG WAIT", "CREATED")
			fmt.Fprintf(out, "%-40s  %-10s  %-20s  %5s  %8s  %s\n", "--", "-----", "--------", "-----", "--------", "-------")
			for _, r := range runs {
				fmt.Fprintf(out, "%-40s  %-10s  %-20s  %5d  %8.2f  %s\n",
					r.ID, r.State, r.Name, r.Processes, r.AverageWaiting, humanize.Time(r.CreatedAt))
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), resp.Pagination.Total)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (COMPLETED, ABORTED, FAILED)")
	cmd.Flags().StringVar(&name, "name", "", "Filter by workload name")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs (server default 20)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")

	return cmd
}
