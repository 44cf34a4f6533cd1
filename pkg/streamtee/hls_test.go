package streamtee

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListSize(t *testing.T) {
	t.Run("derived", func(t *testing.T) {
		p := SegmentPolicy{SegmentSeconds: 4, KeepMinutes: 5}
		require.Equal(t, 75, p.ListSize())
	})
	t.Run("floor of two", func(t *testing.T) {
		p := SegmentPolicy{SegmentSeconds: 60, KeepMinutes: 1}
		require.Equal(t, 2, p.ListSize())
	})
	t.Run("unset duration keeps the muxer default", func(t *testing.T) {
		p := SegmentPolicy{SegmentSeconds: 0, KeepMinutes: 5}
		require.Equal(t, 0, p.ListSize())
	})
	t.Run("unset window keeps everything", func(t *testing.T) {
		p := SegmentPolicy{SegmentSeconds: 4, KeepMinutes: 0}
		require.Equal(t, 0, p.ListSize())
	})
}

func TestMuxOptions(t *testing.T) {
	asMap := func(opts []muxOption) map[string]string {
		m := make(map[string]string, len(opts))
		for _, opt := range opts {
			m[opt.Key] = opt.Value
		}
		return m
	}

	t.Run("fully configured", func(t *testing.T) {
		p := SegmentPolicy{SegmentSeconds: 4, KeepMinutes: 1}
		m := asMap(p.muxOptions("out_seg%05d.ts"))
		require.Equal(t, map[string]string{
			"hls_time":             "4",
			"hls_list_size":        "15",
			"hls_flags":            "delete_segments",
			"hls_segment_filename": "out_seg%05d.ts",
		}, m)
	})
	t.Run("zero value emits no duration or size", func(t *testing.T) {
		m := asMap(SegmentPolicy{}.muxOptions("out_seg%05d.ts"))
		require.NotContains(t, m, "hls_time")
		require.NotContains(t, m, "hls_list_size")
		require.Equal(t, "delete_segments", m["hls_flags"])
	})
}

func TestSegmentPattern(t *testing.T) {
	require.Equal(t, "dir/index_seg%05d.ts", segmentPattern("dir/index.m3u8"))
	require.Equal(t, "dir/index_low_seg%05d.ts", segmentPattern("dir/index_low.m3u8"))
	require.Equal(t, "noext_seg%05d.ts", segmentPattern("noext"))
	require.Equal(t, "a.b/noext_seg%05d.ts", segmentPattern("a.b/noext"))
}
