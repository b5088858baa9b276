// Package player launches media players. All invocations use exec with
// explicit argument slices, never a shell.
package player

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"vodpick/internal/media"
)

// Options controls one playback.
type Options struct {
	Title string
	Start float64          // resume position in seconds, 0 starts from the top
	Skip  media.SkipConfig // intro/outro skipping, honoured when Enabled
}

// Result is what the player reported when it exited.
type Result struct {
	Position float64 // last observed position in seconds
	Duration float64 // 0 when the player does not report it
}

// Completed reports whether playback reached the end, allowing for a
// skipped outro and end credits.
func (r Result) Completed(skip media.SkipConfig) bool {
	if r.Duration <= 0 || r.Position <= 0 {
		return false
	}
	end := r.Duration * 0.92
	if skip.Enabled && skip.OutroSeconds > 0 {
		end = math.Min(end, r.Duration-skip.OutroSeconds-5)
	}
	return r.Position >= end
}

// Player is the interface for media player implementations.
type Player interface {
	// Play blocks until the player exits and returns the last position.
	Play(ctx context.Context, stream media.Stream, opts Options) (Result, error)

	// Name returns the player name.
	Name() string

	// Available checks if the player binary exists in PATH.
	Available() bool
}

// New creates a player by name.
func New(name string, log zerolog.Logger) Player {
	log = log.With().Str("player", name).Logger()
	switch name {
	case "mpv":
		return &MPV{log: log}
	case "vlc":
		return &VLC{log: log}
	case "iina", "celluloid":
		return &Generic{name: name, log: log}
	default:
		return &MPV{log: log}
	}
}

// startPosition is the resume position, or the end of the intro when
// skipping is enabled and there is nothing to resume.
func startPosition(opts Options) float64 {
	if opts.Start > 0 {
		return opts.Start
	}
	if opts.Skip.Enabled && opts.Skip.IntroSeconds > 0 {
		return opts.Skip.IntroSeconds
	}
	return 0
}

// FormatDuration formats seconds as H:MM:SS or M:SS.
func FormatDuration(seconds float64) string {
	s := int(seconds)
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
