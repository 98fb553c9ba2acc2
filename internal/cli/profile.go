package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ProfileResult is the JSON form of the effective device profile.
type ProfileResult struct {
	Name            string          `json:"name"`
	MaxTimelineDiff uint64          `json:"max_timeline_diff"`
	WaitTimeout     string          `json:"wait_timeout"`
	QueueFamilies   []ProfileFamily `json:"queue_families"`
}

// ProfileFamily is one queue family of the effective profile.
type ProfileFamily struct {
	Index uint32   `json:"index"`
	Count uint32   `json:"count"`
	Flags []string `json:"flags"`
}

// NewProfileCommand creates the profile command.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Print the effective device profile",
		Long: `Print the device profile 'qsync run' would use: the --profile file (or the
built-in default) with the --timeout override applied.

Examples:
  qsync profile
  qsync profile --profile ./profiles/two_family.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := rootOpts.Settings.ResolveProfile()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load profile", err)
			}

			result := ProfileResult{
				Name:            p.Name,
				MaxTimelineDiff: p.MaxTimelineDiff,
				WaitTimeout:     p.WaitTimeout.String(),
			}
			for _, f := range p.QueueFamilies {
				result.QueueFamilies = append(result.QueueFamilies, ProfileFamily(f))
			}

			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(result)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "name:              %s\n", result.Name)
			fmt.Fprintf(w, "max timeline diff: %d\n", result.MaxTimelineDiff)
			fmt.Fprintf(w, "wait timeout:      %s\n", result.WaitTimeout)
			for _, f := range result.QueueFamilies {
				fmt.Fprintf(w, "family %d: %d queue(s) %v\n", f.Index, f.Count, f.Flags)
			}
			return nil
		},
	}
}
