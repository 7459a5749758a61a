package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/bagfilter/internal/config"
)

// patternOptions selects the channels to remove.
type patternOptions struct {
	topics  []string
	presets []string
}

// registerPatternFlags adds the removal pattern flags to a cobra command.
func registerPatternFlags(cmd *cobra.Command, opts *patternOptions) {
	f := cmd.Flags()
	f.StringArrayVarP(&opts.topics, "topic", "t", nil, "channel name or glob pattern to remove (repeatable)")
	f.StringArrayVar(&opts.presets, "preset", nil, "named pattern list from the config file (repeatable)")

	_ = cmd.RegisterFlagCompletionFunc("preset", completePresets)
}

// registerExportFlags adds the output writer flags to a cobra command. Their
// values are read back through the loaded configuration so that environment
// variables and the config file apply as well.
func registerExportFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("suffix", config.DefaultSuffix, "suffix appended to the input name for the default output")
	f.Bool("atomic", true, "stage the output and move it into place only on success")
	f.String("compression", config.CompressionNone, "output compression: none, lz4 (ROS1), zstd (ROS2)")
	f.String("compression-mode", config.CompressionModeFile, "ROS2 zstd granularity: file, message")
	f.Int("chunk-size", 0, "ROS1 chunk threshold in bytes (0 selects the default)")

	_ = cmd.RegisterFlagCompletionFunc("compression",
		completeFixed(config.CompressionNone, config.CompressionLZ4, config.CompressionZstd))
	_ = cmd.RegisterFlagCompletionFunc("compression-mode",
		completeFixed(config.CompressionModeFile, config.CompressionModeMessage))
}
