package xpath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeOutput(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"out/stream/", "out/stream/index.m3u8"},
		{"out/stream.m3u8", "out/stream.m3u8"},
		{"out/stream", "out/stream.m3u8"},
		{"out.dir/stream", "out.dir/stream.m3u8"},
		{"stream", "stream.m3u8"},
		{"", ""},
	} {
		require.Equal(t, tc.want, NormalizeOutput(tc.in), "input: %q", tc.in)
	}
}

func TestNormalizeOutputExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, dir+"/index.m3u8", NormalizeOutput(dir))
}

func TestNormalizeOutputIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		dir,
		dir + "/",
		filepath.Join(dir, "cam0"),
		filepath.Join(dir, "cam0.m3u8"),
	}
	for _, in := range inputs {
		once := NormalizeOutput(in)
		require.Equal(t, once, NormalizeOutput(once), "input: %q", in)
	}
}

func TestWithSuffix(t *testing.T) {
	require.Equal(t, "a/index_low.m3u8", WithSuffix("a/index.m3u8", "_low"))
	require.Equal(t, "a/index_high.m3u8", WithSuffix("a/index.m3u8", "_high"))
	require.Equal(t, "a/index_low", WithSuffix("a/index", "_low"))
	require.Equal(t, "a.b/index_low", WithSuffix("a.b/index", "_low"))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Expand("~/logs/streamtee.log")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "logs/streamtee.log"), got)

	got, err = Expand("/var/log/streamtee.log")
	require.NoError(t, err)
	require.Equal(t, "/var/log/streamtee.log", got)
}
