package bag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_String(t *testing.T) {
	tests := []struct {
		f    Format
		want string
	}{
		{FormatLegacy, "rosbag1"},
		{FormatModern, "rosbag2"},
		{FormatUnknown, "unknown"},
		{Format(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.String())
		})
	}
}

func TestDetect_Legacy(t *testing.T) {
	tests := []string{
		"run.bag",
		"./data/run.bag",
		"/abs/path/run_filt.bag",
	}
	for _, p := range tests {
		f, err := Detect(p)
		require.NoError(t, err)
		assert.Equal(t, FormatLegacy, f, "path=%q", p)
	}
}

func TestDetect_Modern(t *testing.T) {
	tests := []string{
		"run",
		"./data/rosbag2_2024_01_01",
		"/abs/path/run/",
		`C:\bags\run\`,
		"run_2024.05.01",
		"/data/bags/session.v2/",
		"rosbag2_2024_01_01-12.30.00",
	}
	for _, p := range tests {
		f, err := Detect(p)
		require.NoError(t, err)
		assert.Equal(t, FormatModern, f, "path=%q", p)
	}
}

func TestDetect_Unrecognized(t *testing.T) {
	for _, p := range []string{"run.mcap", "notes.txt", "run.db3", "run_0.db3.zstd", "metadata.yaml", "run.bag.lock"} {
		f, err := Detect(p)
		assert.Equal(t, FormatUnknown, f)

		var fe *FormatError
		require.ErrorAs(t, err, &fe, "path=%q", p)
		assert.Equal(t, p, fe.Path)
	}
}

func TestDetect_EmptyString(t *testing.T) {
	_, err := Detect("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty path")
}

func TestDetect_DoesNotTouchFilesystem(t *testing.T) {
	f, err := Detect("/definitely/not/here.bag")
	require.NoError(t, err)
	assert.Equal(t, FormatLegacy, f)
}

func TestTopicsOf(t *testing.T) {
	conns := []Connection{
		{ID: 0, Topic: "/a"},
		{ID: 1, Topic: "/b"},
		{ID: 2, Topic: "/a"},
		{ID: 3, Topic: "/c"},
	}

	assert.Equal(t, []string{"/a", "/b", "/c"}, TopicsOf(conns))
	assert.Empty(t, TopicsOf(nil))
}

func TestErrors(t *testing.T) {
	nf := &NotFoundError{Path: "x.bag"}
	assert.Equal(t, `bag "x.bag" not found`, nf.Error())

	fe := &FormatError{Path: "x.mcap", Reason: "nope"}
	assert.Contains(t, fe.Error(), "x.mcap")
	assert.Contains(t, fe.Error(), "nope")
}
