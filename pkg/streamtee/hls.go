package streamtee

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/asticode/go-astiav"
)

// SegmentPolicy configures one segmented output: segment duration and
// how much of the stream the rolling playlist retains. A zero value
// leaves the corresponding muxer default in place.
type SegmentPolicy struct {
	SegmentSeconds int
	KeepMinutes    int
}

// ListSize is the number of segments the playlist retains, derived from
// the retention window; 0 means "leave the muxer default". The floor of
// 2 keeps the playlist playable even for very short windows.
func (p SegmentPolicy) ListSize() int {
	if p.SegmentSeconds <= 0 || p.KeepMinutes <= 0 {
		return 0
	}
	listSize := p.KeepMinutes * 60 / p.SegmentSeconds
	if listSize < 2 {
		listSize = 2
	}
	return listSize
}

type muxOption struct {
	Key   string
	Value string
}

// muxOptions returns the segmented-muxer options for this policy. Only
// explicitly configured knobs are emitted; old segments are always
// deleted as they roll out of the retention window.
func (p SegmentPolicy) muxOptions(segmentPattern string) []muxOption {
	var opts []muxOption
	if p.SegmentSeconds > 0 {
		opts = append(opts, muxOption{"hls_time", strconv.Itoa(p.SegmentSeconds)})
	}
	if listSize := p.ListSize(); listSize > 0 {
		opts = append(opts, muxOption{"hls_list_size", strconv.Itoa(listSize)})
	}
	opts = append(opts,
		muxOption{"hls_flags", "delete_segments"},
		muxOption{"hls_segment_filename", segmentPattern},
	)
	return opts
}

// dictionary materializes the options for the muxer's header write. The
// caller owns the returned dictionary.
func (p SegmentPolicy) dictionary(segmentPattern string) (*astiav.Dictionary, error) {
	d := astiav.NewDictionary()
	if d == nil {
		return nil, newError(KindAlloc, "unable to allocate the muxer options dictionary")
	}
	for _, opt := range p.muxOptions(segmentPattern) {
		d.Set(opt.Key, opt.Value, 0)
	}
	return d, nil
}

// segmentPattern derives the segment filename pattern from a playlist
// path: "dir/index_low.m3u8" -> "dir/index_low_seg%05d.ts".
func segmentPattern(playlistPath string) string {
	base := playlistPath
	if dot := strings.LastIndexByte(base, '.'); dot > strings.LastIndexByte(base, '/') {
		base = base[:dot]
	}
	return fmt.Sprintf("%s_seg%%05d.ts", base)
}
