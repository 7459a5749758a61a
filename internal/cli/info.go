package cli

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bagfilter/internal/bagio"
	"github.com/hupe1980/bagfilter/internal/logging"
	"github.com/hupe1980/bagfilter/internal/output"
)

type infoOptions struct {
	format string
	output string
}

func newInfoCommand() *cobra.Command {
	opts := &infoOptions{}
	renderers := output.DefaultRegistry()

	cmd := &cobra.Command{
		Use:   "info BAG",
		Short: "Summarize the channels of a bag",
		Long: `Info prints the container format, size, time range and channel
table of a bag without reading its messages.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeBagPath,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args[0], opts, renderers)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", "table", "report format: "+renderers.AvailableFormats())
	f.StringVarP(&opts.output, "output", "o", "", "write the report to a file instead of stdout")

	_ = cmd.RegisterFlagCompletionFunc("format", completeFixed(renderers.Formats()...))

	return cmd
}

func runInfo(cmd *cobra.Command, path string, opts *infoOptions, renderers *output.Registry) error {
	logger := logging.FromContext(cmd.Context())

	render, err := renderers.Renderer(opts.format)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	family, err := bagio.DefaultRegistry().ForPath(path)
	if err != nil {
		return withExitCode(err)
	}

	r, err := family.Open(path)
	if err != nil {
		return withExitCode(err)
	}

	info := output.NewBagInfo(path, family.Format(), r)

	if err := r.Close(); err != nil {
		return withExitCode(fmt.Errorf("closing %s: %w", path, err))
	}

	logging.WithBag(logger, path, family.Format()).Debug("bag summarized",
		slog.Int("channels", len(info.Channels)),
		slog.Uint64("messages", info.Messages),
	)

	var buf bytes.Buffer
	if err := render(&buf, info); err != nil {
		return &ExitError{Code: ExitGeneric, Err: fmt.Errorf("rendering report: %w", err)}
	}

	var w output.Writer = output.NewStdoutWriter(cmd.OutOrStdout())
	if opts.output != "" {
		w = output.NewFileWriter(opts.output, output.WithLogger(logger))
	}

	if err := w.Write(buf.Bytes()); err != nil {
		return &ExitError{Code: ExitGeneric, Err: err}
	}

	return nil
}
