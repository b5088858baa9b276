package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"vodpick/internal/media"
)

// VLC plays through VLC. It has no IPC position tracking, so the returned
// position is always 0.
type VLC struct {
	log zerolog.Logger
}

func (v *VLC) Name() string { return "vlc" }

func (v *VLC) Available() bool {
	_, err := exec.LookPath("vlc")
	return err == nil
}

func (v *VLC) Play(ctx context.Context, stream media.Stream, opts Options) (Result, error) {
	args := vlcArgs(stream, opts)
	v.log.Debug().Strs("args", args).Msg("starting vlc")

	cmd := exec.CommandContext(ctx, "vlc", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		// VLC exits non-zero on user close.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("running vlc: %w", err)
	}
	return Result{}, nil
}

func vlcArgs(stream media.Stream, opts Options) []string {
	args := []string{
		stream.URL,
		"--meta-title", opts.Title,
		"--play-and-exit",
	}
	if start := startPosition(opts); start > 0 {
		args = append(args, fmt.Sprintf("--start-time=%.0f", start))
	}
	if stream.Referer != "" {
		args = append(args, "--http-referrer="+stream.Referer)
	}
	return args
}
