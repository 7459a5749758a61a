package watch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	var callCount atomic.Int32
	var lastKey atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(key string) {
		callCount.Add(1)
		lastKey.Store(key)
	})
	defer d.Stop()

	d.Trigger("a.bag")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "a.bag", lastKey.Load())
}

func TestDebouncer_MultipleEventsCoalesced(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(100*time.Millisecond, func(string) {
		callCount.Add(1)
	})
	defer d.Stop()

	// A bag that is still being recorded emits a stream of writes.
	for i := 0; i < 10; i++ {
		d.Trigger("run.bag")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
}

func TestDebouncer_KeysAreIndependent(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}

	d := NewDebouncer(50*time.Millisecond, func(key string) {
		mu.Lock()
		seen[key]++
		mu.Unlock()
	})
	defer d.Stop()

	d.Trigger("a.bag")
	d.Trigger("b.bag")
	d.Trigger("a.bag")

	assert.Equal(t, 2, d.Pending())

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, map[string]int{"a.bag": 1, "b.bag": 1}, seen)
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(string) {
		callCount.Add(1)
	})

	d.Trigger("a.bag")
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load(), "callback should not fire after Stop")
	assert.Equal(t, 0, d.Pending())
}

// ---------------------------------------------------------------------------
// Candidate detection
// ---------------------------------------------------------------------------

func TestBagCandidate(t *testing.T) {
	root := "/data/bags"

	tests := []struct {
		name  string
		event fsnotify.Event
		want  string
		ok    bool
	}{
		{"legacy bag created", fsnotify.Event{Name: "/data/bags/run.bag", Op: fsnotify.Create}, "/data/bags/run.bag", true},
		{"legacy bag written", fsnotify.Event{Name: "/data/bags/run.bag", Op: fsnotify.Write}, "/data/bags/run.bag", true},
		{"legacy bag in subdir", fsnotify.Event{Name: "/data/bags/day1/run.bag", Op: fsnotify.Create}, "/data/bags/day1/run.bag", true},
		{"modern metadata", fsnotify.Event{Name: "/data/bags/run/metadata.yaml", Op: fsnotify.Create}, "/data/bags/run", true},
		{"metadata at root", fsnotify.Event{Name: "/data/bags/metadata.yaml", Op: fsnotify.Create}, "", false},
		{"storage file", fsnotify.Event{Name: "/data/bags/run/run_0.db3", Op: fsnotify.Write}, "", false},
		{"filtered legacy bag", fsnotify.Event{Name: "/data/bags/run_filt.bag", Op: fsnotify.Create}, "", false},
		{"filtered modern bag", fsnotify.Event{Name: "/data/bags/run_filt/metadata.yaml", Op: fsnotify.Write}, "", false},
		{"hidden staging dir", fsnotify.Event{Name: "/data/bags/.run.bagfilter-1/metadata.yaml", Op: fsnotify.Create}, "", false},
		{"hidden file", fsnotify.Event{Name: "/data/bags/.run.bag", Op: fsnotify.Create}, "", false},
		{"editor backup", fsnotify.Event{Name: "/data/bags/run.bag~", Op: fsnotify.Write}, "", false},
		{"removed", fsnotify.Event{Name: "/data/bags/run.bag", Op: fsnotify.Remove}, "", false},
		{"chmod", fsnotify.Event{Name: "/data/bags/run.bag", Op: fsnotify.Chmod}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bagCandidate(root, tt.event, "_filt")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsFiltered(t *testing.T) {
	assert.True(t, isFiltered("/x/run_filt.bag", "_filt"))
	assert.True(t, isFiltered("/x/run_filt", "_filt"))
	assert.False(t, isFiltered("/x/run.bag", "_filt"))
	assert.False(t, isFiltered("/x/run_filt.bag", ""))
	assert.True(t, isFiltered("/x/run_2024.05.01_filt", "_filt"))
	assert.False(t, isFiltered("/x/run_2024.05.01", "_filt"))
}

func TestScanExisting(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bag"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_filt.bag"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "modern"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modern", "metadata.yaml"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "recording"), 0o755))

	bags, err := scanExisting(dir, "_filt")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.bag"), filepath.Join(dir, "modern")}, bags)
}

func TestAddRecursive_SkipsHiddenDirs(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "day1", "run"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".run.bagfilter-x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bag"), nil, 0o644))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addRecursive(watcher, dir))

	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}

	assert.True(t, watched[dir], "root should be watched")
	assert.True(t, watched[filepath.Join(dir, "day1")])
	assert.True(t, watched[filepath.Join(dir, "day1", "run")])
	assert.False(t, watched[filepath.Join(dir, ".run.bagfilter-x")], "staging dirs should NOT be watched")
	assert.False(t, watched[filepath.Join(dir, ".git", "objects")])
}

func TestAddRecursive_NonExistentDir(t *testing.T) {
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	assert.Error(t, addRecursive(watcher, "/nonexistent/dir/12345"))
}

// ---------------------------------------------------------------------------
// Run (integration)
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

type recorder struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recorder) run(_ context.Context, path string) (*RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paths = append(r.paths, path)
	if r.err != nil {
		return nil, r.err
	}

	return &RunResult{Output: path + ".out", Channels: 2, Written: 10, Skipped: 5}, nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.paths...)
}

func startWatch(t *testing.T, opts Options, fn RunFunc) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, fn)
	}()

	// Let the watcher register its directories.
	time.Sleep(100 * time.Millisecond)

	return cancel, done
}

func stopWatch(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down in time")
	}
}

func testOptions(dir string) Options {
	opts := DefaultOptions()
	opts.Dir = dir
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	return opts
}

func TestRun_GracefulShutdown(t *testing.T) {
	rec := &recorder{}

	cancel, done := startWatch(t, testOptions(t.TempDir()), rec.run)
	stopWatch(t, cancel, done)

	assert.Empty(t, rec.seen())
}

func TestRun_NewLegacyBagTriggersRun(t *testing.T) {
	dir := t.TempDir()
	out := &syncBuffer{}
	rec := &recorder{}

	opts := testOptions(dir)
	opts.Out = out

	cancel, done := startWatch(t, opts, rec.run)

	path := filepath.Join(dir, "run.bag")
	require.NoError(t, os.WriteFile(path, []byte("#ROSBAG V2.0\n"), 0o644))

	time.Sleep(300 * time.Millisecond)
	stopWatch(t, cancel, done)

	assert.Equal(t, []string{path}, rec.seen())
	assert.Contains(t, out.String(), path+" → "+path+".out (2 channels, 10 written, 5 skipped)")
}

func TestRun_ModernBagTriggersOnMetadata(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	cancel, done := startWatch(t, testOptions(dir), rec.run)

	bagDir := filepath.Join(dir, "run")
	require.NoError(t, os.Mkdir(bagDir, 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(bagDir, "run_0.db3"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bagDir, "metadata.yaml"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	stopWatch(t, cancel, done)

	assert.Equal(t, []string{bagDir}, rec.seen())
}

func TestRun_IgnoresFilteredOutput(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	cancel, done := startWatch(t, testOptions(dir), rec.run)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_filt.bag"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	stopWatch(t, cancel, done)

	assert.Empty(t, rec.seen())
}

func TestRun_ExistingBags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.bag")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	rec := &recorder{}

	opts := testOptions(dir)
	opts.Existing = true

	cancel, done := startWatch(t, opts, rec.run)
	stopWatch(t, cancel, done)

	assert.Equal(t, []string{path}, rec.seen())
}

func TestRun_RunFuncError(t *testing.T) {
	dir := t.TempDir()
	out := &syncBuffer{}
	rec := &recorder{err: errors.New("boom")}

	opts := testOptions(dir)
	opts.Out = out

	cancel, done := startWatch(t, opts, rec.run)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.bag"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	stopWatch(t, cancel, done)

	assert.Len(t, rec.seen(), 1)
	assert.Contains(t, out.String(), "ERROR: boom")
}

func TestRun_InvalidDir(t *testing.T) {
	opts := testOptions("/nonexistent/bag/dir/12345")

	err := Run(context.Background(), opts, (&recorder{}).run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching bag directory")
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 2*time.Second, opts.Debounce)
	assert.Equal(t, "_filt", opts.Suffix)
	assert.False(t, opts.Existing)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Out)
}
