package transcode

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const stagingTag = ".bagfilter-"

// rename is swapped in tests to simulate a failing publish.
var rename = os.Rename

// destination is where an export writes and how the result is published.
type destination struct {
	final   string
	target  string
	staging string
	replace bool
	lock    *flock.Flock
	logger  *slog.Logger
}

// acquire locks the final output path and prepares the write target. With
// atomic set the target lives in a fresh hidden sibling directory;
// otherwise the target is the final path itself and an existing output is
// removed up front.
func acquire(final string, replace, atomic bool, logger *slog.Logger) (*destination, error) {
	parent := filepath.Dir(final)
	if err := os.MkdirAll(parent, 0o755); err != nil { //nolint:gosec // output directories are world-readable
		return nil, fmt.Errorf("creating output directory %s: %w", parent, err)
	}

	lock := flock.New(final + ".lock")

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", final, err)
	}

	if !locked {
		return nil, fmt.Errorf("output %s is being written by another export", final)
	}

	d := &destination{
		final:   final,
		target:  final,
		replace: replace,
		lock:    lock,
		logger:  logger,
	}

	if !atomic {
		if replace {
			if err := os.RemoveAll(final); err != nil {
				d.release()
				return nil, fmt.Errorf("removing existing output %s: %w", final, err)
			}
		}

		return d, nil
	}

	base := filepath.Base(final)
	d.staging = filepath.Join(parent, "."+base+stagingTag+uuid.NewString())

	if err := os.Mkdir(d.staging, 0o700); err != nil {
		d.release()
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	d.target = filepath.Join(d.staging, base)

	return d, nil
}

// commit publishes the finished target at the final path.
func (d *destination) commit() error {
	defer d.release()

	if d.staging == "" {
		return nil
	}

	defer d.removeStaging()

	// The previous output is parked in the staging directory and dropped
	// with it, so it survives a failed publish.
	var parked string

	if d.replace {
		parked = filepath.Join(d.staging, "previous-"+filepath.Base(d.final))
		if err := rename(d.final, parked); err != nil {
			return fmt.Errorf("moving aside existing output %s: %w", d.final, err)
		}
	}

	if err := rename(d.target, d.final); err != nil {
		if parked != "" {
			if rerr := rename(parked, d.final); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restoring %s: %w", d.final, rerr))
			}
		}

		return fmt.Errorf("publishing %s: %w", d.final, err)
	}

	return nil
}

// abort discards the staged output. Without staging the partial output
// stays on disk.
func (d *destination) abort() {
	defer d.release()

	if d.staging == "" {
		if exists(d.final) {
			d.logger.Warn("export failed, partial output left on disk", slog.String("path", d.final))
		}

		return
	}

	d.removeStaging()
}

func (d *destination) removeStaging() {
	if err := os.RemoveAll(d.staging); err != nil {
		d.logger.Warn("failed to remove staging directory",
			slog.String("path", d.staging),
			slog.String("error", err.Error()),
		)
	}
}

func (d *destination) release() {
	err := errors.Join(d.lock.Unlock(), os.Remove(d.lock.Path()))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Debug("failed to release output lock", slog.String("error", err.Error()))
	}
}
