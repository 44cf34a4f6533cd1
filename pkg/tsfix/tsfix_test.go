package tsfix

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepairBothUnknown(t *testing.T) {
	c := NewCursor(1)
	pts, dts := c.Repair(0, NoValue, NoValue, 0)
	require.EqualValues(t, 0, pts)
	require.EqualValues(t, 0, dts)
	require.EqualValues(t, 1, c.Next(0))

	pts, dts = c.Repair(0, NoValue, NoValue, 0)
	require.EqualValues(t, 1, pts)
	require.EqualValues(t, 1, dts)
	require.EqualValues(t, 2, c.Next(0))
}

func TestRepairPTSUnknown(t *testing.T) {
	c := NewCursor(1)
	pts, dts := c.Repair(0, NoValue, 100, 10)
	require.EqualValues(t, 100, pts)
	require.EqualValues(t, 100, dts)
	require.EqualValues(t, 110, c.Next(0))
}

func TestRepairDTSUnknown(t *testing.T) {
	c := NewCursor(1)
	pts, dts := c.Repair(0, 100, NoValue, 10)
	require.EqualValues(t, 100, pts)
	require.EqualValues(t, 100, dts)
}

func TestRepairClampsBackwardsDTS(t *testing.T) {
	c := NewCursor(1)
	c.Repair(0, 1000, 1000, 50) // cursor -> 1050
	pts, dts := c.Repair(0, 900, 900, 50)
	require.EqualValues(t, 1050, dts)
	require.EqualValues(t, 1050, pts, "pts must be raised to the clamped dts")
	require.EqualValues(t, 1100, c.Next(0))
}

func TestRepairPTSNeverBelowDTS(t *testing.T) {
	c := NewCursor(1)
	pts, dts := c.Repair(0, 10, 20, 5)
	require.EqualValues(t, 20, dts)
	require.EqualValues(t, 20, pts)
}

func TestRepairStreamsAreIndependent(t *testing.T) {
	c := NewCursor(2)
	c.Repair(0, 500, 500, 100)
	pts, dts := c.Repair(1, NoValue, NoValue, 0)
	require.EqualValues(t, 0, pts)
	require.EqualValues(t, 0, dts)
	require.EqualValues(t, 600, c.Next(0))
	require.EqualValues(t, 1, c.Next(1))
}

func TestRepairCursorAdvanceIsMaxDurationOne(t *testing.T) {
	c := NewCursor(1)
	for _, tc := range []struct {
		duration int64
		advance  int64
	}{
		{duration: 0, advance: 1},
		{duration: -3, advance: 1},
		{duration: 1, advance: 1},
		{duration: 3003, advance: 3003},
	} {
		before := c.Next(0)
		_, dts := c.Repair(0, NoValue, NoValue, tc.duration)
		require.Equal(t, dts+tc.advance, c.Next(0), "duration %d", tc.duration)
		require.Equal(t, before, dts)
	}
}

func TestRepairMonotonicityOverHostileSequence(t *testing.T) {
	// Mix of unknown, duplicated, backwards and normal timestamps: the
	// repaired dts sequence must be non-decreasing and pts >= dts.
	inputs := []struct {
		pts, dts, dur int64
	}{
		{NoValue, NoValue, 0},
		{0, 0, 3000},
		{3000, 3000, 3000},
		{3000, 3000, 3000}, // duplicate
		{1000, 500, 0},     // jumps backwards
		{NoValue, 9000, 3000},
		{9000, NoValue, 0},
		{12000, 11000, 3000},
		{NoValue, NoValue, 0},
	}

	c := NewCursor(1)
	lastDTS := int64(-1)
	for i, in := range inputs {
		pts, dts := c.Repair(0, in.pts, in.dts, in.dur)
		require.GreaterOrEqual(t, dts, lastDTS, "packet %d", i)
		require.GreaterOrEqual(t, pts, dts, "packet %d", i)
		require.Greater(t, c.Next(0), dts, "packet %d", i)
		lastDTS = dts
	}
}
