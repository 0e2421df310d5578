package media

import "strings"

// shellQuote produces a single-quoted, bash-safe form of s, for the rare
// paths that must be interpolated into a bash -c pipeline (ffmpeg|ffprobe,
// vspipe|x264) rather than passed as a discrete argv entry.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
