package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/bagfilter/internal/config"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for bagfilter.

To load completions:

Bash:
  $ source <(bagfilter completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ bagfilter completion bash > /etc/bash_completion.d/bagfilter

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ bagfilter completion zsh > "${fpath[1]}/_bagfilter"

Fish:
  $ bagfilter completion fish > ~/.config/fish/completions/bagfilter.fish

PowerShell:
  PS> bagfilter completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> bagfilter completion powershell > bagfilter.ps1
  # and source this file from your PowerShell profile.
`,
		// Override parent PersistentPreRunE: completion needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}

			return nil
		},
	}

	return cmd
}

// completePresets offers the preset names of the active config file.
func completePresets(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	var cfgFile string
	if f := cmd.Flag("config"); f != nil {
		cfgFile = f.Value.String()
	}

	cfg, err := config.Load(cmd, cfgFile)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	presets, err := config.LoadPresets(cfg.ConfigFile)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	return presets.Names(), cobra.ShellCompDirectiveNoFileComp
}

// completeFixed offers a fixed list of values.
func completeFixed(values ...string) cobra.CompletionFunc {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeBagPath completes the single bag argument. ROS2 bags are
// directories, so plain file completion is used.
func completeBagPath(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	return nil, cobra.ShellCompDirectiveDefault
}
