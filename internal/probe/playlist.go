package probe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPlaylist is returned for playlists without a usable entry.
var ErrInvalidPlaylist = errors.New("invalid playlist")

var resolutionPattern = regexp.MustCompile(`RESOLUTION=(\d+)x(\d+)`)

// playlist is the part of an HLS playlist the prober needs.
type playlist struct {
	master bool
	entry  string // first variant (master) or first segment (media)
	width  int    // RESOLUTION width of the chosen variant, 0 if absent
	isHLS  bool
}

// parsePlaylist reads an HLS playlist. For a master playlist it picks the
// first variant; for a media playlist the first segment. Relative URIs are
// resolved against base.
func parsePlaylist(r io.Reader, base *url.URL) (playlist, error) {
	var pl playlist
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, 512*1024)

	pendingVariant := false
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTM3U") {
			pl.isHLS = true
			continue
		}
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF") {
			pl.master = true
			pendingVariant = true
			if m := resolutionPattern.FindStringSubmatch(line); m != nil {
				pl.width, _ = strconv.Atoi(m[1])
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		// URI line.
		if pl.master && !pendingVariant {
			continue
		}
		ref, err := url.Parse(line)
		if err != nil {
			continue
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		pl.entry = ref.String()
		break
	}
	if err := sc.Err(); err != nil {
		return playlist{}, fmt.Errorf("%w: %v", ErrInvalidPlaylist, err)
	}
	if !pl.isHLS || pl.entry == "" {
		return playlist{}, ErrInvalidPlaylist
	}
	return pl, nil
}
