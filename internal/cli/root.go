// Package cli implements the cobra command tree for bagfilter.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bagfilter/internal/config"
	"github.com/hupe1980/bagfilter/internal/logging"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	return execute(NewRootCommand(), os.Stderr)
}

func execute(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitGeneric
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached. The root command itself filters a bag.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	opts := &filterOptions{}

	cmd := &cobra.Command{
		Use:   "bagfilter INPUT_BAG",
		Short: "Remove channels from ROS bags",
		Long: `bagfilter copies a ROS bag while leaving out the channels (topics)
selected by removal patterns.

Both container families are supported: single-file ROS1 bags ("*.bag")
and directory-shaped ROS2 bags holding a metadata.yaml. The output uses
the same family as the input and defaults to the input name with the
"_filt" suffix.

Patterns are shell-style globs matched against the full channel name,
where "*" also crosses "/" separators. A pattern without glob syntax
removes exactly that channel.`,
		Example: `  # Remove all camera channels
  bagfilter run.bag -t '/camera/*'

  # Preview which channels would be kept
  bagfilter run_2024_05_01 -t /tf_static -t '/debug/*' --dry-run

  # Write a zstd-compressed ROS2 bag, replacing an existing output
  bagfilter run_2024_05_01 -o clean -t /rosout --compression zstd -f`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeBagPath,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: ExitUsage, Err: err}
			}

			logger := logging.Setup(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = config.NewContextWithConfigFile(ctx, cfg.ConfigFile)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd, args[0], opts)
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .bagfilter.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	registerPatternFlags(cmd, &opts.patternOptions)
	registerExportFlags(cmd)

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output bag path (default: input name with suffix)")
	f.BoolVarP(&opts.force, "force", "f", false, "overwrite an existing output bag")
	f.BoolVar(&opts.dryRun, "dry-run", false, "show the channels that would be kept without writing")
	f.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Err: err}
	})

	cmd.AddCommand(
		newInfoCommand(),
		newWatchCommand(),
		newVersionCommand(),
		newCompletionCommand(),
	)

	return cmd
}
