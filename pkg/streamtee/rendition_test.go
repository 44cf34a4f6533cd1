package streamtee

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultLadder(t *testing.T) {
	ladder := DefaultLadder()
	require.NoError(t, ValidateLadder(ladder))
	require.Len(t, ladder, 3)
	require.Equal(t, "low", ladder[0].Name)
	require.Equal(t, 426, ladder[0].Width)
	require.Equal(t, 240, ladder[0].Height)
	require.Equal(t, int64(400_000), ladder[0].BitRate)
	require.Equal(t, "high", ladder[2].Name)
	require.Equal(t, int64(2_500_000), ladder[2].BitRate)
}

func TestLoadLadder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ladder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
renditions:
  - name: tiny
    width: 256
    height: 144
    bitrate: 200000
  - name: sd
    width: 854
    height: 480
    bitrate: 1000000
`), 0o644))

	ladder, err := LoadLadder(path)
	require.NoError(t, err)
	require.Equal(t, []Rendition{
		{Name: "tiny", Width: 256, Height: 144, BitRate: 200_000},
		{Name: "sd", Width: 854, Height: 480, BitRate: 1_000_000},
	}, ladder)
}

func TestLoadLadderErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadLadder(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
	t.Run("broken yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ladder.yaml")
		require.NoError(t, os.WriteFile(path, []byte("renditions: ["), 0o644))
		_, err := LoadLadder(path)
		require.Error(t, err)
	})
}

func TestValidateLadder(t *testing.T) {
	valid := Rendition{Name: "a", Width: 640, Height: 360, BitRate: 500_000}

	for name, ladder := range map[string][]Rendition{
		"empty":             {},
		"unnamed":           {{Width: 640, Height: 360, BitRate: 500_000}},
		"duplicate name":    {valid, valid},
		"zero width":        {{Name: "a", Height: 360, BitRate: 500_000}},
		"negative height":   {{Name: "a", Width: 640, Height: -1, BitRate: 500_000}},
		"zero bitrate":      {{Name: "a", Width: 640, Height: 360}},
		"one bad among two": {valid, {Name: "b", Width: 640, Height: 360, BitRate: -5}},
	} {
		t.Run(name, func(t *testing.T) {
			require.Error(t, ValidateLadder(ladder))
		})
	}

	require.NoError(t, ValidateLadder([]Rendition{valid}))
}
