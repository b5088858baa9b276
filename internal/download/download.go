// Package download saves a committed episode to disk with ffmpeg. Invocations
// use explicit argument slices and output paths are checked against
// directory traversal.
package download

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"vodpick/internal/httputil"
	"vodpick/internal/media"
)

// Filename names the output file for an episode. Single-episode titles get
// no episode suffix.
func Filename(title, year string, episode, totalEpisodes int) string {
	name := title
	if year != "" && year != "unknown" {
		name = fmt.Sprintf("%s (%s)", name, year)
	}
	if totalEpisodes > 1 {
		name = fmt.Sprintf("%s - E%02d", name, episode+1)
	}
	return httputil.SanitizeFilename(name) + ".mp4"
}

// Download fetches stream into outputDir using ffmpeg and returns the file
// path. A failed or cancelled download leaves no partial file behind.
func Download(ctx context.Context, stream media.Stream, filename, outputDir string, log zerolog.Logger) (string, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	absDir, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	outputPath, err := httputil.PathWithin(absDir, filename)
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs(stream, outputPath)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.Info().Str("path", outputPath).Msg("downloading")

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg download failed: %w", err)
	}
	return outputPath, nil
}

func ffmpegArgs(stream media.Stream, outputPath string) []string {
	args := []string{"-y", "-loglevel", "warning", "-stats"}
	if stream.Referer != "" {
		args = append(args, "-headers", "Referer: "+stream.Referer+"\r\n")
	}
	args = append(args,
		"-i", stream.URL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		outputPath,
	)
	return args
}
