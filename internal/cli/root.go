package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/qsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Settings are resolved from flags, QSYNC_* variables and the
	// QSYNC_CONFIG file before any subcommand runs.
	Settings config.Settings

	// Logger writes to the command's stderr.
	Logger *slog.Logger

	viper *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the qsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "qsync",
		Short: "qsync - queue synchronization validator",
		Long: `Validate GPU queue synchronization: binary and timeline semaphores,
fences, and queue family ownership transfers, driven by scripted scenarios.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			settings, err := config.LoadSettings(opts.viper)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid settings", err)
			}
			opts.Settings = settings
			opts.Logger = newLogger(cmd, opts)
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.String("db", "", "SQLite trace database (env QSYNC_DB)")
	pf.String("profile", "", "CUE device profile (env QSYNC_PROFILE)")
	pf.Duration("timeout", 0, "override the profile's wait timeout (env QSYNC_TIMEOUT)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	for key, flag := range map[string]string{
		"db":        "db",
		"profile":   "profile",
		"timeout":   "timeout",
		"log_level": "log-level",
	} {
		_ = opts.viper.BindPFlag(key, pf.Lookup(flag))
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))

	return cmd
}

// newLogger builds the stderr text logger. --verbose forces debug level.
func newLogger(cmd *cobra.Command, opts *RootOptions) *slog.Logger {
	var level slog.Level
	switch opts.Settings.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger returns the configured logger, or one that discards when the
// command runs without the root's pre-run hook.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
