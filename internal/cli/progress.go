package cli

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

const progressThrottle = 100 * time.Millisecond

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressReporter renders export progress on a terminal. The bar is created
// on the first update, when the total record count is known.
type progressReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{w: w}
}

// update is a transcode.ProgressFunc.
func (p *progressReporter) update(done, total uint64) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions64(int64(total), //nolint:gosec // record counts fit in int64
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription("filtering"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("msg"),
			progressbar.OptionThrottle(progressThrottle),
			progressbar.OptionClearOnFinish(),
		)
	}

	_ = p.bar.Set64(int64(done)) //nolint:gosec // record counts fit in int64
}

func (p *progressReporter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
