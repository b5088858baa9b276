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

// Generic plays through players like iina and celluloid that accept
// mpv-compatible arguments. Position tracking is not supported.
type Generic struct {
	name string
	log  zerolog.Logger
}

func (g *Generic) Name() string { return g.name }

func (g *Generic) Available() bool {
	_, err := exec.LookPath(g.name)
	return err == nil
}

func (g *Generic) Play(ctx context.Context, stream media.Stream, opts Options) (Result, error) {
	args := genericArgs(stream, opts)
	g.log.Debug().Strs("args", args).Msg("starting player")

	cmd := exec.CommandContext(ctx, g.name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("running %s: %w", g.name, err)
	}
	return Result{}, nil
}

func genericArgs(stream media.Stream, opts Options) []string {
	args := []string{stream.URL, "--force-media-title=" + opts.Title}
	if start := startPosition(opts); start > 0 {
		args = append(args, fmt.Sprintf("--start=+%.0f", start))
	}
	return args
}
