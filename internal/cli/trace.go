package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/report"
	"github.com/roach88/qsync/internal/store"
	"github.com/roach88/qsync/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	RunID string
	Code  string // optional - filter violations to one code
}

// TraceViolation is the JSON form of a stored violation.
type TraceViolation struct {
	Code     string   `json:"code"`
	Severity string   `json:"severity"`
	Location string   `json:"location,omitempty"`
	Message  string   `json:"message"`
	Objects  []string `json:"objects,omitempty"`
}

// TraceResult holds one stored run.
type TraceResult struct {
	RunID      string           `json:"run_id"`
	Events     []trace.Event    `json:"events"`
	Violations []TraceViolation `json:"violations"`
}

// RunSummary is one line of the run listing.
type RunSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Profile    string `json:"profile"`
	Events     int    `json:"events"`
	Violations int    `json:"violations"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read stored runs",
		Long: `Read runs stored by 'qsync run --db'.

Without --run, lists every stored run. With --run, prints the run's trace in
canonical JSONL followed by its violations.

Examples:
  qsync trace --db ./qsync.db
  qsync trace --db ./qsync.db --run 0192f0c4-...
  qsync trace --db ./qsync.db --run 0192f0c4-... --code VUID-vkQueueSubmit-pWaitSemaphores-00068
  qsync trace --db ./qsync.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to print")
	cmd.Flags().StringVar(&opts.Code, "code", "", "only print violations with this code")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Settings.DB == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}

	st, err := store.Open(opts.Settings.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, opts, st, cmd)
	}

	events, err := st.ReadEvents(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	vs, err := st.ReadViolations(ctx, opts.RunID, report.Code(opts.Code))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read violations", err)
	}

	result := TraceResult{
		RunID:      opts.RunID,
		Events:     events,
		Violations: make([]TraceViolation, 0, len(vs)),
	}
	for _, v := range vs {
		tv := TraceViolation{
			Code:     string(v.Code),
			Severity: v.Severity.String(),
			Location: v.Location,
			Message:  v.Message,
		}
		for _, o := range v.Objects {
			tv.Objects = append(tv.Objects, o.String())
		}
		result.Violations = append(result.Violations, tv)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}
	return writeTraceText(cmd.OutOrStdout(), result)
}

func listRuns(ctx context.Context, opts *TraceOptions, st *store.Store, cmd *cobra.Command) error {
	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = RunSummary(r)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return nil
	}
	for _, r := range summaries {
		fmt.Fprintf(w, "%s  %-24s %-12s events=%d violations=%d\n",
			r.ID, r.Name, r.Profile, r.Events, r.Violations)
	}
	return nil
}

func writeTraceText(w io.Writer, result TraceResult) error {
	if len(result.Events) == 0 {
		fmt.Fprintf(w, "No events found for run: %s\n", result.RunID)
	} else {
		lines, err := trace.Lines(result.Events)
		if err != nil {
			return err
		}
		if _, err := w.Write(lines); err != nil {
			return err
		}
	}

	if len(result.Violations) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nViolations (%d):\n", len(result.Violations))
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  %s [%s] %s", v.Code, v.Severity, v.Message)
		if len(v.Objects) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(v.Objects, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}
