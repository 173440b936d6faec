package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"draftforge/internal/pipeline"
)

// statusReport is the status command's payload.
type statusReport struct {
	States  map[string]int `json:"states"`
	Queue   int            `json:"queue_depth"`
	Claimed int            `json:"claimed"`
	Total   int            `json:"total"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show pipeline state counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func showStatus(opts *RootOptions, cmd *cobra.Command) error {
	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.StateCounts(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count articles", err)
	}
	claimed, err := st.CountClaimed(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count claims", err)
	}

	report := statusReport{States: make(map[string]int, len(counts)), Claimed: claimed}
	for state, n := range counts {
		report.States[string(state)] = n
		report.Total += n
	}
	for _, state := range pipeline.RunnableStates() {
		report.Queue += counts[state]
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return out.Success(report, func(w io.Writer) {
		fmt.Fprintf(w, "Articles: %d total, %d in flight, %d claimed\n", report.Total, report.Queue, report.Claimed)
		for _, state := range pipeline.States() {
			if n := counts[state]; n > 0 {
				fmt.Fprintf(w, "  %-20s %d\n", state, n)
			}
		}
	})
}
