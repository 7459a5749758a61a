// Package logging builds the [log/slog] logger used by bagfilter and carries
// it through contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hupe1980/bagfilter/internal/bag"
	"github.com/hupe1980/bagfilter/internal/config"
)

type ctxKey struct{}

// New returns a logger writing to w with the level and handler format taken
// from cfg. Quiet mode raises the level to error.
func New(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.EffectiveLogLevel()),
		ReplaceAttr: roundDurations,
	}

	if cfg.LogFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup is New followed by slog.SetDefault, so library code logging through
// slog.Default follows the CLI flags.
func Setup(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := New(cfg, w)
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a configured level name to a slog.Level. Unknown names
// log at info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}

	return level
}

// roundDurations prints export and debounce durations at millisecond
// precision.
func roundDurations(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		a.Value = slog.StringValue(a.Value.Duration().Round(time.Millisecond).String())
	}

	return a
}

// NewContext returns a child context carrying logger.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored by NewContext, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}

	return slog.Default()
}

// Discard returns a logger that drops every record. The library facade
// uses it when the caller supplies no logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// WithBag annotates logger with the bag path and its container format.
func WithBag(logger *slog.Logger, path string, format bag.Format) *slog.Logger {
	return logger.With(slog.String("bag", path), slog.String("format", format.String()))
}
