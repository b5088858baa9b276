package player

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"vodpick/internal/media"
)

// MPV plays through mpv and tracks the position over its IPC socket, which
// lives at a randomized temp path.
type MPV struct {
	log zerolog.Logger
}

func (m *MPV) Name() string { return "mpv" }

func (m *MPV) Available() bool {
	_, err := exec.LookPath("mpv")
	return err == nil
}

// Play launches mpv and returns the final playback position.
func (m *MPV) Play(ctx context.Context, stream media.Stream, opts Options) (Result, error) {
	socketDir, err := os.MkdirTemp("", "vodpick-mpv-*")
	if err != nil {
		return Result{}, fmt.Errorf("creating temp dir for mpv socket: %w", err)
	}
	defer os.RemoveAll(socketDir)

	socketPath := filepath.Join(socketDir, "socket")
	args := mpvArgs(stream, opts, socketPath)
	m.log.Debug().Strs("args", args).Msg("starting mpv")

	cmd := exec.CommandContext(ctx, "mpv", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting mpv: %w", err)
	}

	tracked := make(chan Result, 1)
	go func() {
		tracked <- trackPosition(socketPath, 5*time.Second)
	}()

	waitErr := cmd.Wait()
	res := <-tracked

	if waitErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		// mpv exits non-zero when the user quits or the stream errors.
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			m.log.Debug().Int("exitCode", exitErr.ExitCode()).Msg("mpv exited")
			return res, nil
		}
		return res, fmt.Errorf("running mpv: %w", waitErr)
	}
	return res, nil
}

func mpvArgs(stream media.Stream, opts Options, socketPath string) []string {
	args := []string{
		stream.URL,
		"--force-media-title=" + opts.Title,
		"--input-ipc-server=" + socketPath,
		"--really-quiet",
	}
	if start := startPosition(opts); start > 0 {
		args = append(args, fmt.Sprintf("--start=+%.0f", start))
	}
	if opts.Skip.Enabled && opts.Skip.OutroSeconds > 0 {
		args = append(args, fmt.Sprintf("--end=-%.0f", opts.Skip.OutroSeconds))
	}
	if stream.Referer != "" {
		args = append(args, "--referrer="+stream.Referer)
	}
	return args
}

type ipcEvent struct {
	Event string          `json:"event"`
	Name  string          `json:"name"`
	Data  json.RawMessage `json:"data"`
}

// trackPosition observes time-pos and duration on mpv's IPC socket until
// the connection closes.
func trackPosition(socketPath string, wait time.Duration) Result {
	var res Result

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return res
	}
	defer conn.Close()

	for i, prop := range []string{"time-pos", "duration"} {
		cmd := map[string]any{
			"command":    []any{"observe_property", i + 1, prop},
			"request_id": 100 + i,
		}
		data, _ := json.Marshal(cmd)
		if _, err := conn.Write(append(data, '\n')); err != nil {
			return res
		}
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var ev ipcEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Event != "property-change" {
			continue
		}
		var v float64
		if err := json.Unmarshal(ev.Data, &v); err != nil || v <= 0 {
			continue
		}
		switch ev.Name {
		case "time-pos":
			res.Position = v
		case "duration":
			res.Duration = v
		}
	}
	return res
}
