package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/vansante/go-ffprobe.v2"

	"vodpick/internal/media"
)

var segment = bytes.Repeat([]byte{0x47, 0x40, 0x00, 0x10}, 64*1024)

func streamServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080\nhi/index.m3u8\n")
	})
	mux.HandleFunc("/hi/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:6.0,\nseg0.ts\n#EXTINF:6.0,\nseg1.ts\n")
	})
	mux.HandleFunc("/media.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:6.0,\nhi/seg0.ts\n")
	})
	mux.HandleFunc("/hi/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		w.Write(segment)
	})
	mux.HandleFunc("/movie.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(append([]byte("\x00\x00\x00\x18ftypmp42"), segment...))
	})
	mux.HandleFunc("/broken.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:6.0,\nnope.ts\n")
	})
	mux.HandleFunc("/blocked.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Access denied</body></html>")
	})
	mux.HandleFunc("/slow.m3u8", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	return httptest.NewServer(mux)
}

func newTestProber(srv *httptest.Server, timeout time.Duration) *Prober {
	p := New(timeout, srv.Client(), zerolog.Nop())
	p.ffprobe = func(ctx context.Context, fileURL string, opts ...string) (*ffprobe.ProbeData, error) {
		return nil, errors.New("ffprobe not installed")
	}
	return p
}

func TestProbeMasterPlaylist(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	p := newTestProber(srv, time.Second)
	var ffprobeCalls atomic.Int32
	p.ffprobe = func(ctx context.Context, fileURL string, opts ...string) (*ffprobe.ProbeData, error) {
		ffprobeCalls.Add(1)
		return nil, errors.New("unused")
	}

	res, err := p.Probe(context.Background(), srv.URL+"/master.m3u8")
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, media.Quality1080p, res.Quality)
	assert.Greater(t, res.SpeedKBps, 0.0)
	assert.GreaterOrEqual(t, res.PingMs, 0.0)
	assert.Zero(t, ffprobeCalls.Load(), "RESOLUTION attribute should make ffprobe unnecessary")
}

func TestProbeMediaPlaylistUsesFFProbe(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	p := newTestProber(srv, time.Second)
	var probed string
	p.ffprobe = func(ctx context.Context, fileURL string, opts ...string) (*ffprobe.ProbeData, error) {
		probed = fileURL
		return &ffprobe.ProbeData{Streams: []*ffprobe.Stream{
			{CodecType: "audio"},
			{CodecType: "video", Width: 1280, Height: 720},
		}}, nil
	}

	res, err := p.Probe(context.Background(), srv.URL+"/media.m3u8")
	require.NoError(t, err)
	assert.Equal(t, media.Quality720p, res.Quality)
	assert.Equal(t, srv.URL+"/hi/seg0.ts", probed)
}

func TestProbeFFProbeMissing(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	res, err := newTestProber(srv, time.Second).Probe(context.Background(), srv.URL+"/media.m3u8")
	require.NoError(t, err)
	assert.Equal(t, media.QualityUnknown, res.Quality)
	assert.False(t, res.Failed)
}

func TestProbeDirectFile(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	res, err := newTestProber(srv, time.Second).Probe(context.Background(), srv.URL+"/movie.mp4")
	require.NoError(t, err)
	assert.Greater(t, res.SpeedKBps, 0.0)
}

func TestProbeFailures(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	tests := []struct {
		name string
		path string
	}{
		{"not found", "/missing.m3u8"},
		{"html error page", "/blocked.m3u8"},
		{"broken segment", "/broken.m3u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestProber(srv, time.Second).Probe(context.Background(), srv.URL+tt.path)
			require.Error(t, err)
			assert.True(t, res.Failed)
			assert.False(t, errors.Is(err, context.Canceled))
		})
	}
}

func TestProbeTimeoutIsFailure(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	res, err := newTestProber(srv, 50*time.Millisecond).Probe(context.Background(), srv.URL+"/slow.m3u8")
	require.Error(t, err)
	assert.True(t, res.Failed)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestProbeCancelled(t *testing.T) {
	srv := streamServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := newTestProber(srv, 5*time.Second).Probe(ctx, srv.URL+"/slow.m3u8")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Failed)
}
