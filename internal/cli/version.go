package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bagfilter/internal/bagio"
	"github.com/hupe1980/bagfilter/internal/version"
)

type versionOptions struct {
	json  bool
	short bool
}

func newVersionCommand() *cobra.Command {
	opts := &versionOptions{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Display the bagfilter version, build metadata and the bag families this build reads and writes.",
		Args:  cobra.NoArgs,
		// Runs without loading configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeVersion(cmd.OutOrStdout(), version.GetInfo(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "print build metadata as JSON")
	cmd.Flags().BoolVar(&opts.short, "short", false, "print the version number only")
	cmd.MarkFlagsMutuallyExclusive("json", "short")

	return cmd
}

func writeVersion(w io.Writer, info version.Info, opts *versionOptions) error {
	var text string

	switch {
	case opts.short:
		text = info.Version
	case opts.json:
		j, err := info.JSON()
		if err != nil {
			return err
		}

		text = j
	default:
		text = info.String() + "\nbag families: " + strings.Join(bagio.DefaultRegistry().Formats(), ", ")
	}

	_, err := fmt.Fprintln(w, text)

	return err
}
