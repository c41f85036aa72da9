package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/gosched/internal/workload"
	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

var formatContentTypes = map[workload.Format]string{
	workload.FormatJSON: "application/json",
	workload.FormatYAML: "application/yaml",
	workload.FormatHCL:  "application/hcl",
}

func newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <workload>",
		Short: "Run a workload on the server and archive the result",
		Long:  "Upload a workload file (.yaml, .yml, .json or .hcl) to the gosched server, which runs it and archives the outcome.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			format, err := workload.FormatFromPath(path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read workload: %w", err)
			}

			q := url.Values{}
			q.Set("format", string(format))
			q.Set("name", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
			logger.Debug("submitting workload", "path", path, "format", format, "size", len(data))

			resp, err := client.PostRaw(cmd.Context(), "/api/v1/runs?"+q.Encode(), formatContentTypes[format], data)
			if err != nil && !hasData(resp) {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) && len(apiErr.Details) > 0 {
					printFieldErrors(cmd.ErrOrStderr(), apiErr)
				}
				return fmt.Errorf("submit: %w", err)
			}

			var run model.Run
			if err := json.Unmarshal(resp.Data, &run); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run archived: %s\n", run.ID)
			fmt.Fprintf(out, "  Workload: %s\n", run.Name)
			fmt.Fprintf(out, "  State:    %s\n", run.State)
			if run.Error != "" {
				fmt.Fprintf(out, "  Error:    %s\n", run.Error)
			}
			if run.Result != nil {
				st := run.Result.Stats
				fmt.Fprintf(out, "  Ticks:    %d (clock %d)\n", run.Result.Ticks, run.Result.Clock)
				fmt.Fprintf(out, "  Average waiting %.2f, turnaround %.2f, utilization %.1f%%\n",
					st.AverageWaiting, st.AverageTurnaround, st.Utilization*100)
			}

			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			return nil
		},
	}
}

// hasData reports whether an envelope carries a payload, which error
// responses for failed runs do.
func hasData(resp *apiResponse) bool {
	return resp != nil && len(resp.Data) > 0 && string(resp.Data) != "null"
}
