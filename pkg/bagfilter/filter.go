// Package bagfilter provides a public Go API for removing channels from ROS
// bags.
//
// This package exposes the bagfilter export flow as a library, allowing
// programmatic use without the CLI.
//
// Basic usage:
//
//	result, err := bagfilter.Filter(ctx, "run.bag",
//	    bagfilter.WithRemove("/camera/*", "/rosout"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Output)
//
// The output family always matches the input: a "*.bag" file yields a
// "*.bag" file, a bag directory yields a bag directory.
package bagfilter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hupe1980/bagfilter/internal/bag"
	"github.com/hupe1980/bagfilter/internal/channel"
	"github.com/hupe1980/bagfilter/internal/logging"
	"github.com/hupe1980/bagfilter/internal/transcode"
)

// Error types returned by Filter. Match them with errors.As.
type (
	// NotFoundError reports a missing or unreadable input bag.
	NotFoundError = bag.NotFoundError
	// FormatError reports an unrecognized path shape, a family mismatch
	// between input and output, or an unsupported bag feature.
	FormatError = bag.FormatError
	// ConflictError reports an output path that resolves to the input,
	// contains it or lies inside it.
	ConflictError = transcode.ConflictError
	// AlreadyExistsError reports an existing output without WithForce.
	AlreadyExistsError = transcode.AlreadyExistsError
)

// DefaultSuffix is appended to the input name when no output is given.
const DefaultSuffix = transcode.DefaultSuffix

// ProgressFunc receives the number of records read so far and the total.
type ProgressFunc = transcode.ProgressFunc

// Option configures Filter.
type Option func(*options)

type options struct {
	output          string
	suffix          string
	patterns        []string
	force           bool
	dryRun          bool
	atomic          bool
	compression     string
	compressionMode string
	chunkSize       int
	progress        ProgressFunc
	logger          *slog.Logger
}

// WithOutput sets the output bag path. It defaults to the input name with
// DefaultSuffix appended.
func WithOutput(path string) Option {
	return func(o *options) { o.output = path }
}

// WithSuffix changes the suffix used to derive the default output path.
func WithSuffix(suffix string) Option {
	return func(o *options) { o.suffix = suffix }
}

// WithRemove adds removal patterns. A pattern is an exact channel name or a
// glob where "*" also matches across "/".
func WithRemove(patterns ...string) Option {
	return func(o *options) { o.patterns = append(o.patterns, patterns...) }
}

// WithForce allows replacing an existing output. The input is never
// overwritten.
func WithForce() Option {
	return func(o *options) { o.force = true }
}

// WithDryRun computes the retained channels and validates the output path
// without writing anything.
func WithDryRun() Option {
	return func(o *options) { o.dryRun = true }
}

// WithAtomic toggles staged output. It is enabled by default.
func WithAtomic(enabled bool) Option {
	return func(o *options) { o.atomic = enabled }
}

// WithCompression selects the output compression: "lz4" for ROS1 bags,
// "zstd" for ROS2 bags with mode "file" or "message".
func WithCompression(format, mode string) Option {
	return func(o *options) {
		o.compression = format
		o.compressionMode = mode
	}
}

// WithChunkSize sets the ROS1 chunk threshold in bytes.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithLogger sets the logger. Output is discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Result describes a finished (or, with WithDryRun, planned) export.
type Result struct {
	// Input and Output are the bag paths.
	Input  string
	Output string

	// Format is the container family, "rosbag1" or "rosbag2".
	Format string

	// Channels lists every input channel; Retained and Removed partition it.
	Channels []string
	Retained []string
	Removed  []string

	// Unmatched lists the patterns that selected no channel.
	Unmatched []string

	// Written and Skipped count records. Both are zero for dry runs.
	Written uint64
	Skipped uint64

	Duration time.Duration
	DryRun   bool
}

// Filter copies the bag at input, leaving out the channels selected by the
// removal patterns.
func Filter(ctx context.Context, input string, opts ...Option) (*Result, error) {
	if input == "" {
		return nil, errors.New("input bag path must not be empty")
	}

	o := &options{atomic: true, suffix: DefaultSuffix}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logging.Discard()
	}

	t, err := transcode.Open(input, transcode.Options{
		Atomic:          o.atomic,
		Compression:     o.compression,
		CompressionMode: o.compressionMode,
		ChunkSize:       o.chunkSize,
		Progress:        o.progress,
		Logger:          o.logger,
	})
	if err != nil {
		return nil, err
	}

	channels := t.Channels()
	retained := channel.FilterOut(channels, o.patterns)

	result := &Result{
		Input:     input,
		Output:    o.output,
		Format:    t.Format().String(),
		Channels:  channels,
		Retained:  retained,
		Removed:   removed(channels, retained),
		Unmatched: channel.Unmatched(channels, o.patterns),
		DryRun:    o.dryRun,
	}

	if result.Output == "" {
		result.Output = transcode.DefaultOutputPath(input, o.suffix)
	}

	if o.dryRun {
		if _, err := t.CheckOutput(result.Output, o.force); err != nil {
			return nil, err
		}

		return result, nil
	}

	stats, err := t.Export(ctx, result.Output, retained, o.force)
	if err != nil {
		return nil, err
	}

	result.Written = stats.MessagesWritten
	result.Skipped = stats.MessagesSkipped
	result.Duration = stats.Duration

	return result, nil
}

// Channels returns the channel names of the bag at path in declaration
// order.
func Channels(path string) ([]string, error) {
	t, err := transcode.Open(path, transcode.Options{Logger: logging.Discard()})
	if err != nil {
		return nil, err
	}

	return t.Channels(), nil
}

func removed(all, retained []string) []string {
	keep := make(map[string]bool, len(retained))
	for _, name := range retained {
		keep[name] = true
	}

	var out []string

	for _, name := range all {
		if !keep[name] {
			out = append(out, name)
		}
	}

	return out
}
