package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/config"
	"github.com/roach88/qsync/internal/harness"
	"github.com/roach88/qsync/internal/store"
	"github.com/roach88/qsync/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	RunID  string   `json:"run_id,omitempty"`
	Pass   bool     `json:"pass"`
	Codes  []string `json:"codes,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-or-dir>...",
		Short: "Run validation scenarios",
		Long: `Run scenario files against a fresh simulated device each.

Directories are searched recursively for .yaml and .yml files. With --db,
every scenario's trace and violations are stored as a run that
'qsync trace' can read back.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing paths, bad profile, database error)

Examples:
  qsync run ./scenarios
  qsync run ./scenarios/binary_two_queues.yaml --format json
  qsync run ./scenarios --db ./qsync.db --profile ./profiles/two_family.cue`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd.Context(), opts, args, cmd)
		},
	}

	return cmd
}

func runScenarios(ctx context.Context, opts *RunOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)
	logger := opts.logger()

	files, err := harness.ExpandScenarios(paths)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	profile, err := opts.Settings.ResolveProfile()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load profile", err)
	}

	var st *store.Store
	if opts.Settings.DB != "" {
		if st, err = store.Open(opts.Settings.DB); err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	result := RunResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, path := range files {
		sr, err := runOne(ctx, path, profile, st, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to store run", err)
		}
		out.VerboseLog("%s: pass=%t", path, sr.Pass)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		writeRunText(cmd.OutOrStdout(), result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

// runOne loads and runs one scenario. The error is non-nil only when the
// store could not record the run.
func runOne(ctx context.Context, path string, profile config.Profile, st *store.Store, logger *slog.Logger) (ScenarioResult, error) {
	sr := ScenarioResult{Path: path}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr, nil
	}
	sr.Name = scenario.Name

	runOpts := []harness.Option{
		harness.WithProfile(profile),
		harness.WithLogger(logger.With("scenario", scenario.Name)),
	}

	var run *store.Run
	if st != nil {
		profileName := scenario.Profile
		if profileName == "" {
			profileName = profile.Name
		}
		run, err = st.BeginRun(ctx, trace.UUIDv7Generator{}.Generate(), scenario.Name, profileName)
		if err != nil {
			return sr, err
		}
		sr.RunID = run.ID()
		runOpts = append(runOpts, harness.WithTraceSink(run), harness.WithReporter(run))
	}

	res, err := harness.Run(scenario, runOpts...)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		return sr, nil
	}
	if run != nil {
		if err := run.Err(); err != nil {
			return sr, err
		}
	}

	sr.Pass = res.Pass
	sr.Codes = res.Codes()
	sr.Errors = res.Errors
	return sr, nil
}

func writeRunText(w io.Writer, result RunResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, sr := range result.Scenarios {
		name := sr.Name
		if name == "" {
			name = sr.Path
		}
		if sr.Pass {
			fmt.Fprintf(w, "✓ %s", name)
		} else {
			fmt.Fprintf(w, "✗ %s", name)
		}
		if sr.RunID != "" {
			fmt.Fprintf(w, " (run %s)", sr.RunID)
		}
		fmt.Fprintln(w)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
