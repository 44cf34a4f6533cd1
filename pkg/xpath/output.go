package xpath

import (
	"os"
	"strings"
)

const (
	defaultPlaylistName = "index.m3u8"
	playlistExt         = ".m3u8"
)

// NormalizeOutput turns a user-supplied output path into a playlist path:
// a directory gets the default playlist filename appended, an
// extensionless file path gets the playlist extension appended, anything
// else passes through unchanged. The function is idempotent.
func NormalizeOutput(outputPath string) string {
	if outputPath == "" {
		return outputPath
	}

	if strings.HasSuffix(outputPath, "/") || isDirectory(outputPath) {
		dir := outputPath
		if !strings.HasSuffix(dir, "/") {
			dir += "/"
		}
		return dir + defaultPlaylistName
	}

	slash := strings.LastIndexByte(outputPath, '/')
	dot := strings.LastIndexByte(outputPath, '.')
	if dot < 0 || dot < slash {
		return outputPath + playlistExt
	}

	return outputPath
}

// WithSuffix inserts a suffix right before the path's extension:
// WithSuffix("a/index.m3u8", "_low") == "a/index_low.m3u8". A path
// without an extension gets the suffix appended.
func WithSuffix(playlistPath, suffix string) string {
	slash := strings.LastIndexByte(playlistPath, '/')
	dot := strings.LastIndexByte(playlistPath, '.')
	if dot < 0 || dot < slash {
		return playlistPath + suffix
	}
	return playlistPath[:dot] + suffix + playlistPath[dot:]
}

func isDirectory(path string) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return st.IsDir()
}
