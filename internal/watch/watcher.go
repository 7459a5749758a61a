package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/bagfilter/internal/bag"
	"github.com/hupe1980/bagfilter/internal/bag/rosbag2"
)

// RunFunc filters one completed bag.
type RunFunc func(ctx context.Context, bagPath string) (*RunResult, error)

// RunResult holds the outcome of filtering one bag.
type RunResult struct {
	Output   string
	Written  uint64
	Skipped  uint64
	Channels int
}

// Options configures the watch behaviour.
type Options struct {
	// Dir is the directory to watch.
	Dir string

	// Suffix marks bags produced by the filter; they are never picked up.
	Suffix string

	// Debounce is the quiet period a bag needs before it is filtered.
	Debounce time.Duration

	// Existing also filters the bags already present when watching starts.
	Existing bool

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Suffix:   "_filt",
		Debounce: 2 * time.Second,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// Run starts the watcher and blocks until the context is cancelled or a
// SIGINT/SIGTERM signal is received. Bags are filtered one at a time.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, opts.Dir); err != nil {
		return fmt.Errorf("watching bag directory: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(opts.Out, "watching %s for bags (debounce=%s)\n", opts.Dir, opts.Debounce)

	var mu sync.Mutex

	handle := func(path string) {
		mu.Lock()
		defer mu.Unlock()

		if sigCtx.Err() != nil {
			return
		}

		doRun(sigCtx, opts, runFn, path)
	}

	if opts.Existing {
		existing, err := scanExisting(opts.Dir, opts.Suffix)
		if err != nil {
			return fmt.Errorf("scanning bag directory: %w", err)
		}

		for _, path := range existing {
			handle(path)
		}
	}

	debouncer := NewDebouncer(opts.Debounce, handle)
	defer debouncer.Stop()

	for {
		select {
		case <-sigCtx.Done():
			_, _ = fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) && !isHidden(event.Name) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name)
				}
			}

			if path, ok := bagCandidate(opts.Dir, event, opts.Suffix); ok {
				opts.Logger.Debug("bag activity", slog.String("path", path), slog.String("op", event.Op.String()))
				debouncer.Trigger(path)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// doRun filters a single bag and prints the status line.
func doRun(ctx context.Context, opts Options, runFn RunFunc, path string) {
	now := time.Now().Format("15:04:05")

	result, err := runFn(ctx, path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Out, "[%s] %s → ERROR: %v\n", now, path, err)
		return
	}

	_, _ = fmt.Fprintf(opts.Out, "[%s] %s → %s (%d channels, %d written, %d skipped)\n",
		now, path, result.Output, result.Channels, result.Written, result.Skipped)
}

// addRecursive walks root and adds all non-hidden directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}

			return watcher.Add(path)
		}

		return nil
	})
}

// bagCandidate maps an event to the bag it completes: a legacy bag file
// itself, or the directory holding a freshly written metadata.yaml.
func bagCandidate(root string, event fsnotify.Event, suffix string) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}

	name := filepath.Base(event.Name)
	if isIgnoredName(name) {
		return "", false
	}

	var path string

	switch {
	case filepath.Ext(name) == bag.LegacyExt:
		path = event.Name
	case name == rosbag2.MetadataFile:
		path = filepath.Dir(event.Name)
		if filepath.Clean(path) == filepath.Clean(root) || isHidden(path) {
			return "", false
		}
	default:
		return "", false
	}

	if isFiltered(path, suffix) {
		return "", false
	}

	return path, true
}

// scanExisting lists the complete bags directly below root.
func scanExisting(root, suffix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var bags []string

	for _, e := range entries {
		path := filepath.Join(root, e.Name())

		if isIgnoredName(e.Name()) || isFiltered(path, suffix) {
			continue
		}

		switch {
		case e.Type().IsRegular() && filepath.Ext(e.Name()) == bag.LegacyExt:
			bags = append(bags, path)
		case e.IsDir():
			if _, err := os.Stat(filepath.Join(path, rosbag2.MetadataFile)); err == nil {
				bags = append(bags, path)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	return bags, nil
}

// isFiltered reports whether the bag at path is itself filter output.
func isFiltered(path, suffix string) bool {
	if suffix == "" {
		return false
	}

	name := strings.TrimSuffix(filepath.Base(path), bag.LegacyExt)

	return strings.HasSuffix(name, suffix)
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// isIgnoredName filters hidden and editor temporary files.
func isIgnoredName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#")
}
