package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/bagfilter/internal/bag"
	"github.com/hupe1980/bagfilter/internal/bagio"
)

// ProgressFunc receives the number of records read so far and the total
// record count of the input.
type ProgressFunc func(done, total uint64)

// Options configures a Transcoder.
type Options struct {
	// Atomic stages the output and publishes it only on success.
	Atomic bool
	// Compression, CompressionMode and ChunkSize configure the output writer.
	Compression     string
	CompressionMode string
	ChunkSize       int

	Progress ProgressFunc
	Logger   *slog.Logger
	Registry *bagio.Registry
}

// DefaultOptions returns options with staged exports enabled.
func DefaultOptions() Options {
	return Options{Atomic: true}
}

// Stats summarizes one export.
type Stats struct {
	Output          string
	Connections     int
	MessagesRead    uint64
	MessagesWritten uint64
	MessagesSkipped uint64
	// PerChannel counts written records by channel name.
	PerChannel map[string]uint64
	Duration   time.Duration
}

// Transcoder filters one input bag.
type Transcoder struct {
	path   string
	format bag.Format
	family bag.Family
	conns  []bag.Connection
	opts   Options
	logger *slog.Logger
}

// Open detects the family of the bag at path and reads its channel table.
// The input handle is released before Open returns.
func Open(path string, opts Options) (*Transcoder, error) {
	if opts.Registry == nil {
		opts.Registry = bagio.DefaultRegistry()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	family, err := opts.Registry.ForPath(path)
	if err != nil {
		return nil, err
	}

	r, err := family.Open(path)
	if err != nil {
		return nil, err
	}

	conns := r.Connections()

	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", path, err)
	}

	logger.Debug("input bag opened",
		slog.String("path", path),
		slog.String("format", family.Format().String()),
		slog.Int("connections", len(conns)),
	)

	return &Transcoder{
		path:   path,
		format: family.Format(),
		family: family,
		conns:  conns,
		opts:   opts,
		logger: logger,
	}, nil
}

// Path returns the input bag path.
func (t *Transcoder) Path() string { return t.path }

// Format returns the container family of the input.
func (t *Transcoder) Format() bag.Format { return t.format }

// Channels returns the unique channel names in declaration order.
func (t *Transcoder) Channels() []string {
	return bag.TopicsOf(t.conns)
}

// Connections returns the full channel table of the input.
func (t *Transcoder) Connections() []bag.Connection {
	out := make([]bag.Connection, len(t.conns))
	copy(out, t.conns)

	return out
}

// CheckOutput reports whether output can receive an export of this bag
// and whether an existing output would be replaced. It touches nothing.
// force allows replacing an existing output; it never allows an output that
// is, contains or lies inside the input bag.
func (t *Transcoder) CheckOutput(output string, force bool) (replace bool, err error) {
	if overlaps(t.path, output) {
		return false, &ConflictError{Input: t.path, Output: output}
	}

	outFormat, err := bag.Detect(output)
	if err != nil {
		return false, err
	}

	if outFormat != t.format {
		return false, &bag.FormatError{
			Path:   output,
			Reason: fmt.Sprintf("output would be %s but input is %s; converting between families is not supported", outFormat, t.format),
		}
	}

	replace = exists(output)
	if replace && !force {
		return false, &AlreadyExistsError{Path: output}
	}

	return replace, nil
}

// Export writes the records of the retained channels to output. Retained
// names absent from the input are ignored. force allows replacing an
// existing output; it never allows overwriting the input.
func (t *Transcoder) Export(ctx context.Context, output string, retained []string, force bool) (*Stats, error) {
	started := time.Now()

	replace, err := t.CheckOutput(output, force)
	if err != nil {
		return nil, err
	}

	dest, err := acquire(output, replace, t.opts.Atomic, t.logger)
	if err != nil {
		return nil, err
	}

	stats, err := t.transcode(ctx, dest.target, retained)
	if err != nil {
		dest.abort()
		return nil, err
	}

	if err := dest.commit(); err != nil {
		return nil, err
	}

	stats.Output = output
	stats.Duration = time.Since(started)

	t.logger.Debug("export finished",
		slog.String("output", output),
		slog.Uint64("written", stats.MessagesWritten),
		slog.Uint64("skipped", stats.MessagesSkipped),
		slog.Duration("duration", stats.Duration),
	)

	return stats, nil
}

// transcode copies the retained records from the input into a new bag at
// target. Both bags are closed on every path.
func (t *Transcoder) transcode(ctx context.Context, target string, retained []string) (stats *Stats, err error) {
	r, err := t.family.Open(t.path)
	if err != nil {
		return nil, err
	}

	defer func() {
		if cerr := r.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing %s: %w", t.path, cerr))
		}
	}()

	w, err := t.family.Create(target, bag.WriteOptions{
		Compression:     t.opts.Compression,
		CompressionMode: t.opts.CompressionMode,
		ChunkSize:       t.opts.ChunkSize,
	})
	if err != nil {
		return nil, err
	}

	stats, err = copyRetained(ctx, r, w, retained, t.opts.Progress)

	if cerr := w.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("closing output: %w", cerr))
	}

	if err != nil {
		return nil, err
	}

	return stats, nil
}

// copyRetained registers the retained connections on w and streams the
// matching records from r. The remap table is local to one call.
func copyRetained(ctx context.Context, r bag.Reader, w bag.Writer, retained []string, progress ProgressFunc) (*Stats, error) {
	keep := make(map[string]bool, len(retained))
	for _, name := range retained {
		keep[name] = true
	}

	stats := &Stats{PerChannel: make(map[string]uint64)}

	remap := make(map[int]int)
	topics := make(map[int]string)

	for _, c := range r.Connections() {
		if !keep[c.Topic] {
			continue
		}

		id, err := w.AddConnection(c)
		if err != nil {
			return nil, fmt.Errorf("registering %s: %w", c.Topic, err)
		}

		remap[c.ID] = id
		topics[c.ID] = c.Topic
		stats.Connections++
	}

	it, err := r.Messages(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	total := r.MessageCount()

	for it.Next() {
		m := it.Message()
		stats.MessagesRead++

		if id, ok := remap[m.ConnID]; ok {
			if err := w.Write(id, m.Timestamp, m.Data); err != nil {
				return nil, fmt.Errorf("writing %s record at %d: %w", topics[m.ConnID], m.Timestamp, err)
			}

			stats.MessagesWritten++
			stats.PerChannel[topics[m.ConnID]]++
		} else {
			stats.MessagesSkipped++
		}

		if progress != nil {
			progress(stats.MessagesRead, total)
		}
	}

	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	return stats, nil
}
