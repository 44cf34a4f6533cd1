// Package tsfix repairs packet timestamps on a passthrough path so that
// per-stream decode timestamps never go backwards and presentation
// timestamps never precede them. Muxers of segmented formats reject
// packets violating either rule, and real-world sources (RTSP cameras in
// particular) violate both.
package tsfix

import (
	"math"
)

// NoValue marks an unknown timestamp. It equals libav's AV_NOPTS_VALUE.
const NoValue int64 = math.MinInt64

// Cursor tracks, per source stream, the next permissible decode
// timestamp. The zero duration of a packet still advances the cursor by
// one tick, so two consecutive durationless packets never collide.
type Cursor struct {
	next []int64
}

// NewCursor returns a cursor for a source with the given stream count.
// All streams start at 0.
func NewCursor(streams int) *Cursor {
	return &Cursor{
		next: make([]int64, streams),
	}
}

// Next reports the next permissible decode timestamp for a stream.
func (c *Cursor) Next(stream int) int64 {
	return c.next[stream]
}

// Repair substitutes unknown timestamps, clamps the pair to the cursor
// and advances the cursor. It returns the repaired (pts, dts), both in
// the source stream's timebase.
func (c *Cursor) Repair(stream int, pts, dts, duration int64) (int64, int64) {
	floor := c.next[stream]

	switch {
	case pts == NoValue && dts == NoValue:
		pts, dts = floor, floor
	case pts == NoValue:
		pts = dts
	case dts == NoValue:
		dts = pts
	}

	if dts < floor {
		dts = floor
	}
	if pts < dts {
		pts = dts
	}

	advance := duration
	if advance < 1 {
		advance = 1
	}
	c.next[stream] = dts + advance

	return pts, dts
}
