// Package probe measures how well a stream plays: latency to the playlist,
// throughput of the first segment and frame resolution.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/vansante/go-ffprobe.v2"

	"vodpick/internal/httputil"
	"vodpick/internal/media"
)

const (
	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 4 * time.Second

	maxPlaylistBytes = 1 << 20
	maxSegmentBytes  = 2 << 20
)

// probeFunc matches ffprobe.ProbeURL so tests can swap it out.
type probeFunc func(ctx context.Context, fileURL string, extraFFProbeOptions ...string) (*ffprobe.ProbeData, error)

// Prober probes HLS (or direct) stream urls over HTTP.
type Prober struct {
	client  *http.Client
	timeout time.Duration
	ffprobe probeFunc
	log     zerolog.Logger
}

// New creates a prober. A zero timeout uses DefaultTimeout; a nil client
// gets a hardened default.
func New(timeout time.Duration, client *http.Client, log zerolog.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = httputil.NewClientWithTimeout(timeout)
	}
	return &Prober{
		client:  client,
		timeout: timeout,
		ffprobe: ffprobe.ProbeURL,
		log:     log,
	}
}

// Probe measures streamURL. When ctx is cancelled the returned error wraps
// ctx.Err(); running out of the per-probe timeout is an ordinary failure.
func (p *Prober) Probe(ctx context.Context, streamURL string) (media.ProbeResult, error) {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.probe(pctx, streamURL)
	if err != nil {
		if ctx.Err() != nil {
			return media.ProbeResult{}, fmt.Errorf("probe %s: %w", streamURL, ctx.Err())
		}
		p.log.Debug().Err(err).Str("url", streamURL).Msg("probe failed")
		return media.ProbeResult{Quality: media.QualityUnknown, Failed: true}, fmt.Errorf("probe %s: %w", streamURL, err)
	}

	p.log.Debug().
		Str("url", streamURL).
		Str("quality", string(res.Quality)).
		Float64("speedKBps", res.SpeedKBps).
		Float64("pingMs", res.PingMs).
		Msg("probe ok")
	return res, nil
}

func (p *Prober) probe(ctx context.Context, streamURL string) (media.ProbeResult, error) {
	start := time.Now()
	body, finalURL, err := p.fetch(ctx, streamURL, maxPlaylistBytes)
	if err != nil {
		return media.ProbeResult{}, err
	}
	ping := time.Since(start)

	segmentURL := streamURL
	width := 0

	pl, perr := parsePlaylist(bytes.NewReader(body), finalURL)
	switch {
	case perr == nil && pl.master:
		width = pl.width
		variant, variantURL, err := p.fetch(ctx, pl.entry, maxPlaylistBytes)
		if err != nil {
			return media.ProbeResult{}, fmt.Errorf("variant playlist: %w", err)
		}
		mpl, err := parsePlaylist(bytes.NewReader(variant), variantURL)
		if err != nil {
			return media.ProbeResult{}, fmt.Errorf("variant playlist: %w", err)
		}
		segmentURL = mpl.entry
	case perr == nil:
		segmentURL = pl.entry
	case errors.Is(perr, ErrInvalidPlaylist) && !looksLikeText(body):
		// Direct media file, measured as its own segment.
	default:
		return media.ProbeResult{}, perr
	}

	speed, err := p.measure(ctx, segmentURL)
	if err != nil {
		return media.ProbeResult{}, fmt.Errorf("segment: %w", err)
	}

	quality := media.QualityFromWidth(width)
	if quality == media.QualityUnknown {
		quality = p.frameQuality(ctx, segmentURL)
	}

	return media.ProbeResult{
		Quality:   quality,
		SpeedKBps: speed,
		PingMs:    float64(ping.Microseconds()) / 1000,
	}, nil
}

// fetch GETs u and returns up to limit bytes plus the url after redirects.
func (p *Prober) fetch(ctx context.Context, u string, limit int64) ([]byte, *url.URL, error) {
	resp, err := httputil.Get(ctx, p.client, u)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, nil, &httputil.StatusError{Code: resp.StatusCode, URL: u}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, nil, err
	}
	return body, resp.Request.URL, nil
}

// measure downloads the first maxSegmentBytes of a segment and returns KB/s.
func (p *Prober) measure(ctx context.Context, segmentURL string) (float64, error) {
	start := time.Now()
	body, _, err := p.fetch(ctx, segmentURL, maxSegmentBytes)
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(start).Seconds()
	if len(body) == 0 {
		return 0, errors.New("empty segment")
	}
	if elapsed <= 0 {
		elapsed = 0.001
	}
	return float64(len(body)) / 1024 / elapsed, nil
}

// frameQuality asks ffprobe for the first video stream's width. Any ffprobe
// problem, including a missing binary, yields QualityUnknown.
func (p *Prober) frameQuality(ctx context.Context, segmentURL string) media.Quality {
	if p.ffprobe == nil {
		return media.QualityUnknown
	}
	data, err := p.ffprobe(ctx, segmentURL, "-user_agent", httputil.UserAgent)
	if err != nil {
		p.log.Trace().Err(err).Str("url", segmentURL).Msg("ffprobe unavailable")
		return media.QualityUnknown
	}
	if data == nil {
		return media.QualityUnknown
	}
	if v := data.FirstVideoStream(); v != nil {
		return media.QualityFromWidth(v.Width)
	}
	return media.QualityUnknown
}

// looksLikeText reports whether body is probably an HTML or text error page
// rather than binary media.
func looksLikeText(body []byte) bool {
	return strings.HasPrefix(http.DetectContentType(body), "text/")
}
