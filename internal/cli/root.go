// Package cli implements the gosched command-line interface: local
// simulation plus submit/list/show against a gosched server.
package cli

import (
	"log/slog"
	"os"

	"github.com/me/gosched/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking GOSCHED_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GOSCHED_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the gosched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gosched",
		Short: "gosched: preemptive priority scheduling simulator",
		Long: "gosched simulates a single CPU shared by processes under preemptive\n" +
			"priority scheduling with aging, locally or on a gosched server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "gosched server URL (or GOSCHED_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSimulateCmd(),
		newSubmitCmd(),
		newListCmd(),
		newShowCmd(),
		newDeleteCmd(),
	)

	return root
}
