package cli

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Watch command
// ---------------------------------------------------------------------------

func TestWatch_RequiresPatterns(t *testing.T) {
	_, _, err := executeCommand("watch", t.TempDir())
	requireExitCode(t, err, ExitUsage)
	assert.Contains(t, err.Error(), "at least one --topic or --preset")
}

func TestWatch_MissingDir(t *testing.T) {
	_, _, err := executeCommand("watch", filepath.Join(t.TempDir(), "missing"), "-t", "/a")
	requireExitCode(t, err, ExitNotFound)
}

func TestWatch_NoArgs(t *testing.T) {
	_, _, err := executeCommand("watch")
	require.Error(t, err)
}

func TestWatchOutputPath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		dir   string
		want  string
	}{
		{"legacy next to input", "/data/run.bag", "", "/data/run_filt.bag"},
		{"modern next to input", "/data/run", "", "/data/run_filt"},
		{"legacy into dir", "/data/run.bag", "/out", "/out/run_filt.bag"},
		{"modern into dir", "/data/day1/run", "/out", "/out/run_filt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, watchOutputPath(tt.input, tt.dir, "_filt"))
		})
	}
}

// ---------------------------------------------------------------------------
// Completion command
// ---------------------------------------------------------------------------

func TestCompletion_Bash(t *testing.T) {
	stdout, _, err := executeCommand("completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, stdout, "bash completion")
}

func TestCompletion_Zsh(t *testing.T) {
	stdout, _, err := executeCommand("completion", "zsh")
	require.NoError(t, err)
	assert.NotEmpty(t, stdout)
}

func TestCompletion_Fish(t *testing.T) {
	stdout, _, err := executeCommand("completion", "fish")
	require.NoError(t, err)
	assert.Contains(t, stdout, "fish")
}

func TestCompletion_PowerShell(t *testing.T) {
	stdout, _, err := executeCommand("completion", "powershell")
	require.NoError(t, err)
	assert.NotEmpty(t, stdout)
}

func TestCompletion_InvalidShell(t *testing.T) {
	_, _, err := executeCommand("completion", "invalid")
	require.Error(t, err)
}

func TestCompleteFixed(t *testing.T) {
	values, directive := completeFixed("none", "lz4")(nil, nil, "")
	assert.Equal(t, []string{"none", "lz4"}, values)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
}

func TestCompleteBagPath(t *testing.T) {
	_, directive := completeBagPath(nil, nil, "")
	assert.Equal(t, cobra.ShellCompDirectiveDefault, directive)

	_, directive = completeBagPath(nil, []string{"run.bag"}, "")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
}

func TestCompletePresets(t *testing.T) {
	stdout, _, err := executeCommand(cobra.ShellCompRequestCmd, "run.bag", "--preset", "")
	require.NoError(t, err)
	assert.Contains(t, stdout, ":4")
}
