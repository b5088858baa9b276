// Package media defines shared types for the vodpick application.
package media

import (
	"strings"

	"github.com/samber/mo"
)

// MediaType represents whether content is a movie or TV show.
type MediaType int

const (
	Movie MediaType = iota
	TV
)

func (m MediaType) String() string {
	switch m {
	case Movie:
		return "movie"
	case TV:
		return "tv"
	default:
		return "unknown"
	}
}

// ParseMediaType maps "movie" / "tv" (and a few aliases) to a MediaType.
func ParseMediaType(s string) (MediaType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return Movie, true
	case "tv", "show", "shows", "series":
		return TV, true
	default:
		return Movie, false
	}
}

// Query describes the content the user wants to watch.
// SearchTitle overrides Title for the catalog lookup when the display title
// differs from the indexed one.
type Query struct {
	Title       string
	Year        string
	Type        mo.Option[MediaType]
	SearchTitle string
}

// LookupTitle returns the title sent to catalog search.
func (q Query) LookupTitle() string {
	if s := strings.TrimSpace(q.SearchTitle); s != "" {
		return s
	}
	return strings.TrimSpace(q.Title)
}

// Equal reports whether two queries describe the same request.
func (q Query) Equal(o Query) bool {
	return q.Title == o.Title &&
		q.Year == o.Year &&
		q.SearchTitle == o.SearchTitle &&
		q.Type.IsPresent() == o.Type.IsPresent() &&
		q.Type.OrEmpty() == o.Type.OrEmpty()
}

// SourceRef identifies one provider's version of a title.
type SourceRef struct {
	Source string `json:"source"` // provider key, e.g. "heimuer"
	ID     string `json:"id"`     // provider-specific id
}

// Key returns the stable map key for the ref.
func (r SourceRef) Key() string {
	return r.Source + "+" + r.ID
}

func (r SourceRef) String() string {
	return r.Source + "/" + r.ID
}

// Candidate is one provider's version of the content.
type Candidate struct {
	Source      string   `json:"source"`     // provider key
	ID          string   `json:"id"`         // provider-specific id
	Title       string   `json:"title"`      // display title as indexed by the provider
	Year        string   `json:"year"`       // four digit year or "unknown"
	Poster      string   `json:"poster"`     // poster URL
	Episodes    []string `json:"episodes"`   // playable stream URL per episode
	SourceName  string   `json:"sourceName"` // human readable provider name
	Description string   `json:"description,omitempty"`
	TypeName    string   `json:"typeName,omitempty"` // provider category label
}

// Ref returns the candidate's identity.
func (c Candidate) Ref() SourceRef {
	return SourceRef{Source: c.Source, ID: c.ID}
}

// Key returns the candidate's identity as a map key.
func (c Candidate) Key() string {
	return c.Ref().Key()
}

// Type infers movie vs TV from the episode count.
func (c Candidate) Type() MediaType {
	if len(c.Episodes) > 1 {
		return TV
	}
	return Movie
}

// Quality is the resolution bucket measured by a probe.
type Quality string

const (
	Quality4K      Quality = "4K"
	Quality2K      Quality = "2K"
	Quality1080p   Quality = "1080p"
	Quality720p    Quality = "720p"
	Quality480p    Quality = "480p"
	QualitySD      Quality = "SD"
	QualityUnknown Quality = "Unknown"
)

// QualityFromWidth buckets a frame width into a Quality.
func QualityFromWidth(width int) Quality {
	switch {
	case width >= 3840:
		return Quality4K
	case width >= 2560:
		return Quality2K
	case width >= 1920:
		return Quality1080p
	case width >= 1280:
		return Quality720p
	case width >= 854:
		return Quality480p
	case width > 0:
		return QualitySD
	default:
		return QualityUnknown
	}
}

// ProbeResult is the measured playability of one candidate.
type ProbeResult struct {
	Quality   Quality `json:"quality"`
	SpeedKBps float64 `json:"speedKBps"`
	PingMs    float64 `json:"pingMs"`
	Failed    bool    `json:"failed"`
}

// PlaybackTarget is what plays now.
type PlaybackTarget struct {
	Source        string             `json:"source"`
	ID            string             `json:"id"`
	Episode       int                `json:"episode"` // zero-based episode index
	ResumeSeconds mo.Option[float64] `json:"resumeSeconds"`
}

// Ref returns the target's source identity.
func (t PlaybackTarget) Ref() SourceRef {
	return SourceRef{Source: t.Source, ID: t.ID}
}

// ResumePosition is the persisted playback position for a title on one provider.
type ResumePosition struct {
	Source        string  `json:"source"`
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Episode       int     `json:"episode"`
	TotalEpisodes int     `json:"totalEpisodes"`
	Seconds       float64 `json:"seconds"`
}

// PlayRecord is a watch history entry.
type PlayRecord struct {
	ResumePosition
	Year        string `json:"year"`
	Poster      string `json:"poster"`
	SearchTitle string `json:"searchTitle,omitempty"`
	UpdatedAt   int64  `json:"updatedAt"` // unix seconds
}

// Favorite is a bookmarked title.
type Favorite struct {
	Source        string `json:"source"`
	ID            string `json:"id"`
	Title         string `json:"title"`
	Year          string `json:"year"`
	Poster        string `json:"poster"`
	TotalEpisodes int    `json:"totalEpisodes"`
	SearchTitle   string `json:"searchTitle,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

// SkipConfig holds per-title intro/outro skip settings in seconds.
type SkipConfig struct {
	Source       string  `json:"source"`
	ID           string  `json:"id"`
	Enabled      bool    `json:"enabled"`
	IntroSeconds float64 `json:"introSeconds"`
	OutroSeconds float64 `json:"outroSeconds"`
}

// Stream contains a resolved playable URL.
type Stream struct {
	URL     string // m3u8 or direct video URL
	Referer string // Optional Referer header for the player
}
