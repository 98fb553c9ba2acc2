package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/config"
	"github.com/roach88/qsync/internal/harness"
)

// ValidateResult is the outcome of checking scenario files without running
// them.
type ValidateResult struct {
	Valid   []string          `json:"valid"`
	Invalid map[string]string `json:"invalid,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-or-dir>...",
		Short: "Check scenario files without running them",
		Long: `Parse scenario files and check their structure: known ops, declared
objects, well-formed expectations and assertions. A scenario that names a
profile file also has that profile loaded.

Examples:
  qsync validate ./scenarios
  qsync validate ./scenarios/fence_lifecycle.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	files, err := harness.ExpandScenarios(paths)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := ValidateResult{Valid: []string{}, Invalid: map[string]string{}}
	for _, path := range files {
		if err := validateFile(path); err != nil {
			result.Invalid[path] = err.Error()
			continue
		}
		result.Valid = append(result.Valid, path)
	}

	if len(result.Invalid) > 0 {
		if opts.Format == "json" {
			if err := out.Error(ErrCodeLoad, fmt.Sprintf("%d invalid scenario files", len(result.Invalid)), result); err != nil {
				return err
			}
		} else {
			w := cmd.OutOrStdout()
			for _, path := range files {
				if msg, bad := result.Invalid[path]; bad {
					fmt.Fprintf(w, "✗ %s\n  %s\n", path, msg)
				} else {
					fmt.Fprintf(w, "✓ %s\n", path)
				}
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario files invalid", len(result.Invalid), len(files)))
	}

	if opts.Format == "json" {
		return out.Success(result)
	}
	for _, path := range result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
	}
	return nil
}

func validateFile(path string) error {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return err
	}
	if p := scenario.ProfilePath(); p != "" {
		if _, err := config.LoadProfile(p); err != nil {
			return fmt.Errorf("profile: %w", err)
		}
	}
	return nil
}
