package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/bagfilter/internal/channel"
	"github.com/hupe1980/bagfilter/internal/config"
	"github.com/hupe1980/bagfilter/internal/logging"
	"github.com/hupe1980/bagfilter/internal/output"
	"github.com/hupe1980/bagfilter/internal/transcode"
)

type filterOptions struct {
	patternOptions

	output     string
	force      bool
	dryRun     bool
	noProgress bool
}

func runFilter(cmd *cobra.Command, input string, opts *filterOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	patterns, err := resolvePatterns(ctx, &opts.patternOptions)
	if err != nil {
		return err
	}

	var progress *progressReporter
	if !opts.dryRun && !opts.noProgress && !cfg.Quiet && isTerminal(cmd.ErrOrStderr()) {
		progress = newProgressReporter(cmd.ErrOrStderr())
	}

	t, err := transcode.Open(input, transcodeOptions(cfg, logger, progress))
	if err != nil {
		return withExitCode(err)
	}

	channels := t.Channels()
	retained := channel.FilterOut(channels, patterns)
	warnUnmatched(logger, channels, patterns)

	dest := opts.output
	if dest == "" {
		dest = transcode.DefaultOutputPath(input, cfg.Suffix)
	}

	if opts.dryRun {
		replace, err := t.CheckOutput(dest, opts.force)
		if err != nil {
			return withExitCode(err)
		}

		return printDryRun(cmd.OutOrStdout(), cfg, input, dest, replace, channels, retained)
	}

	stats, err := t.Export(ctx, dest, retained, opts.force)
	if progress != nil {
		progress.finish()
	}

	if err != nil {
		return withExitCode(err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Filtered bag written to %s\n", stats.Output)
	_, _ = fmt.Fprintf(out, "  channels: %d of %d kept\n", len(retained), len(channels))
	_, _ = fmt.Fprintf(out, "  messages: %s written, %s skipped\n",
		humanize.Comma(int64(stats.MessagesWritten)), humanize.Comma(int64(stats.MessagesSkipped))) //nolint:gosec // record counts fit in int64

	return nil
}

// resolvePatterns combines --topic patterns with the expanded --preset lists.
func resolvePatterns(ctx context.Context, opts *patternOptions) ([]string, error) {
	patterns := append([]string(nil), opts.topics...)

	if len(opts.presets) == 0 {
		return patterns, nil
	}

	presets, err := config.LoadPresets(config.ConfigFileFromContext(ctx))
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}

	expanded, err := presets.Expand(opts.presets)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}

	return append(patterns, expanded...), nil
}

func transcodeOptions(cfg *config.Config, logger *slog.Logger, progress *progressReporter) transcode.Options {
	opts := transcode.DefaultOptions()
	opts.Atomic = cfg.Atomic
	opts.Compression = cfg.Compression
	opts.CompressionMode = cfg.CompressionMode
	opts.ChunkSize = cfg.ChunkSize
	opts.Logger = logger

	if progress != nil {
		opts.Progress = progress.update
	}

	return opts
}

// warnUnmatched logs a warning for every pattern that selects no channel.
func warnUnmatched(logger *slog.Logger, channels, patterns []string) {
	for _, p := range channel.Unmatched(channels, patterns) {
		logger.Warn("pattern matches no channel", slog.String("pattern", p))
	}
}

func printDryRun(w io.Writer, cfg *config.Config, input, dest string, replace bool, channels, retained []string) error {
	note := "not written"
	if replace {
		note = "not written, would replace existing output"
	}

	_, _ = fmt.Fprintf(w, "Input:  %s\n", input)
	_, _ = fmt.Fprintf(w, "Output: %s (%s)\n", dest, note)
	_, _ = fmt.Fprintf(w, "Kept channels (%d of %d):\n", len(retained), len(channels))

	for _, name := range retained {
		_, _ = fmt.Fprintf(w, "  %s\n", name)
	}

	diffOpts := output.DefaultDiffOptions()
	diffOpts.OldLabel = input
	diffOpts.NewLabel = dest

	result, err := output.ChannelDiff(channels, retained, diffOpts)
	if err != nil {
		return &ExitError{Code: ExitGeneric, Err: err}
	}

	_, _ = fmt.Fprintln(w, strings.Repeat("-", 40))
	output.WriteDiff(w, result, !cfg.NoColor && isTerminal(w))

	return nil
}
