package streamtee

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Rendition is one resolution/bitrate variant of the ABR ladder. The
// ladder is defined once at startup and never mutated during a session.
type Rendition struct {
	Name    string `yaml:"name"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	BitRate int64  `yaml:"bitrate"`
}

func (r Rendition) String() string {
	return fmt.Sprintf("%s (%dx%d @ %d bps)", r.Name, r.Width, r.Height, r.BitRate)
}

// DefaultLadder returns the built-in low/mid/high ladder.
func DefaultLadder() []Rendition {
	return []Rendition{
		{Name: "low", Width: 426, Height: 240, BitRate: 400_000},
		{Name: "mid", Width: 854, Height: 480, BitRate: 1_200_000},
		{Name: "high", Width: 1280, Height: 720, BitRate: 2_500_000},
	}
}

type ladderFile struct {
	Renditions []Rendition `yaml:"renditions"`
}

// LoadLadder reads a rendition ladder from a YAML file.
func LoadLadder(path string) ([]Rendition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read the ladder file '%s': %w", path, err)
	}

	var f ladderFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unable to parse the ladder file '%s': %w", path, err)
	}

	if err := ValidateLadder(f.Renditions); err != nil {
		return nil, fmt.Errorf("invalid ladder in '%s': %w", path, err)
	}
	return f.Renditions, nil
}

// ValidateLadder checks that the ladder is non-empty, every rendition is
// fully specified and no two renditions share a name (names become
// playlist filename suffixes).
func ValidateLadder(ladder []Rendition) error {
	if len(ladder) == 0 {
		return fmt.Errorf("the ladder is empty")
	}
	seen := make(map[string]struct{}, len(ladder))
	for i, r := range ladder {
		if r.Name == "" {
			return fmt.Errorf("rendition #%d has no name", i)
		}
		if _, ok := seen[r.Name]; ok {
			return fmt.Errorf("duplicate rendition name '%s'", r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Width <= 0 || r.Height <= 0 {
			return fmt.Errorf("rendition '%s' has invalid geometry %dx%d", r.Name, r.Width, r.Height)
		}
		if r.BitRate <= 0 {
			return fmt.Errorf("rendition '%s' has invalid bitrate %d", r.Name, r.BitRate)
		}
	}
	return nil
}
