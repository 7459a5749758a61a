package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bagfilter/internal/bag"
	"github.com/hupe1980/bagfilter/internal/channel"
	"github.com/hupe1980/bagfilter/internal/config"
	"github.com/hupe1980/bagfilter/internal/logging"
	"github.com/hupe1980/bagfilter/internal/transcode"
	"github.com/hupe1980/bagfilter/internal/watch"
)

type watchOptions struct {
	patternOptions

	outputDir string
	debounce  time.Duration
	existing  bool
	force     bool
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Filter bags as they appear in a directory",
		Long: `Watch monitors a directory for finished recordings and filters each
one with the given removal patterns.

A ROS1 bag is picked up once its file stopped changing for the debounce
period; a ROS2 bag once its metadata.yaml was written. Bags whose name
already ends with the output suffix are ignored, so outputs written into
the watched directory are never filtered again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], opts)
		},
	}

	registerPatternFlags(cmd, &opts.patternOptions)
	registerExportFlags(cmd)

	f := cmd.Flags()
	f.StringVar(&opts.outputDir, "output-dir", "", "directory for filtered bags (default: next to each input)")
	f.DurationVar(&opts.debounce, "debounce", 2*time.Second, "quiet period before a bag is considered complete")
	f.BoolVar(&opts.existing, "existing", false, "also filter bags already present when watching starts")
	f.BoolVarP(&opts.force, "force", "f", false, "overwrite existing output bags")

	return cmd
}

func runWatch(cmd *cobra.Command, dir string, opts *watchOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	patterns, err := resolvePatterns(ctx, &opts.patternOptions)
	if err != nil {
		return err
	}

	if len(patterns) == 0 {
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("watch mode requires at least one --topic or --preset")}
	}

	if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
		return &ExitError{Code: ExitNotFound, Err: fmt.Errorf("watch directory %q does not exist or is not a directory", dir)}
	}

	if opts.outputDir != "" {
		if err := os.MkdirAll(opts.outputDir, 0o755); err != nil { //nolint:gosec // output directories are world-readable
			return &ExitError{Code: ExitGeneric, Err: fmt.Errorf("creating output directory: %w", err)}
		}
	}

	runFn := func(fnCtx context.Context, input string) (*watch.RunResult, error) {
		format, _ := bag.Detect(input)

		t, err := transcode.Open(input, transcodeOptions(cfg, logging.WithBag(logger, input, format), nil))
		if err != nil {
			return nil, err
		}

		channels := t.Channels()
		retained := channel.FilterOut(channels, patterns)

		stats, err := t.Export(fnCtx, watchOutputPath(input, opts.outputDir, cfg.Suffix), retained, opts.force)
		if err != nil {
			return nil, err
		}

		return &watch.RunResult{
			Output:   stats.Output,
			Channels: len(retained),
			Written:  stats.MessagesWritten,
			Skipped:  stats.MessagesSkipped,
		}, nil
	}

	watchOpts := watch.DefaultOptions()
	watchOpts.Dir = dir
	watchOpts.Suffix = cfg.Suffix
	watchOpts.Debounce = opts.debounce
	watchOpts.Existing = opts.existing
	watchOpts.Logger = logger
	watchOpts.Out = cmd.ErrOrStderr()

	return watch.Run(ctx, watchOpts, runFn)
}

// watchOutputPath places the default output of input into dir, or next to
// the input when dir is empty.
func watchOutputPath(input, dir, suffix string) string {
	out := transcode.DefaultOutputPath(input, suffix)
	if dir == "" {
		return out
	}

	return filepath.Join(dir, filepath.Base(out))
}
