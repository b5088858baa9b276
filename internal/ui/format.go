package ui

import (
	"fmt"
	"strings"
	"time"

	"vodpick/internal/media"
	"vodpick/internal/player"
	"vodpick/internal/resolve"
)

// CandidateLine formats a source for the manual source picker.
func CandidateLine(v resolve.CandidateView) string {
	name := v.SourceName
	if name == "" {
		name = v.Source
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("%s [%s]", v.Title, name))
	if n := len(v.Episodes); n > 1 {
		parts = append(parts, fmt.Sprintf("%d episodes", n))
	}
	switch {
	case v.Probe == nil:
		parts = append(parts, "untested")
	case v.Probe.Failed:
		parts = append(parts, "failed")
	default:
		parts = append(parts, fmt.Sprintf("%s %.0f KB/s %.0f ms score %.1f",
			v.Probe.Quality, v.Probe.SpeedKBps, v.Probe.PingMs, v.Score))
	}
	line := strings.Join(parts, "  ")
	if v.Current {
		line = "* " + line
	}
	return line
}

// PlayRecordLine formats a history entry.
func PlayRecordLine(r media.PlayRecord) string {
	line := r.Title
	if r.Year != "" && r.Year != "unknown" {
		line += " (" + r.Year + ")"
	}
	if r.TotalEpisodes > 1 {
		line += fmt.Sprintf("  E%d/%d", r.Episode+1, r.TotalEpisodes)
	}
	if r.Seconds > 0 {
		line += "  at " + player.FormatDuration(r.Seconds)
	}
	if r.UpdatedAt > 0 {
		line += "  " + time.Unix(r.UpdatedAt, 0).Format("2006-01-02")
	}
	return line + "  [" + r.Source + "]"
}

// FavoriteLine formats a bookmark.
func FavoriteLine(f media.Favorite) string {
	line := f.Title
	if f.Year != "" && f.Year != "unknown" {
		line += " (" + f.Year + ")"
	}
	if f.TotalEpisodes > 1 {
		line += fmt.Sprintf("  %d episodes", f.TotalEpisodes)
	}
	return line + "  [" + f.Source + "]"
}
