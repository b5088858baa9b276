package catalog

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"vodpick/internal/media"
)

// vod is one entry of an Apple-CMS videolist response.
type vod struct {
	ID       flexString `json:"vod_id"`
	Name     string     `json:"vod_name"`
	Pic      string     `json:"vod_pic"`
	Year     flexString `json:"vod_year"`
	PlayURL  string     `json:"vod_play_url"`
	TypeName string     `json:"type_name"`
	Content  string     `json:"vod_content"`
	Blurb    string     `json:"vod_blurb"`
}

// listResponse is the Apple-CMS videolist envelope.
type listResponse struct {
	Page      flexString `json:"page"`
	PageCount flexString `json:"pagecount"`
	List      []vod      `json:"list"`
}

// flexString accepts both JSON strings and numbers. Catalogs disagree on
// whether ids, years and page counters are quoted.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Int returns the numeric value, or 0 when it is not a number.
func (f flexString) Int() int {
	n, err := strconv.Atoi(strings.TrimSpace(string(f)))
	if err != nil {
		return 0
	}
	return n
}

var (
	yearPattern  = regexp.MustCompile(`\d{4}`)
	m3u8Pattern  = regexp.MustCompile(`\$(https?://[^"'\s$#]+?\.m3u8)`)
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// parseYear extracts the first four digit run, or "unknown".
func parseYear(raw string) string {
	if y := yearPattern.FindString(raw); y != "" {
		return y
	}
	return "unknown"
}

// parsePlayURL extracts episode URLs from a vod_play_url field.
// Groups are separated by "$$$", episodes by "#", and each episode is
// "name$url". The group carrying the most m3u8 links wins.
func parsePlayURL(raw string) []string {
	if raw == "" {
		return nil
	}

	var best []string
	for _, group := range strings.Split(raw, "$$$") {
		urls := lo.Map(m3u8Pattern.FindAllStringSubmatch(group, -1), func(m []string, _ int) string {
			return stripSuffix(m[1])
		})
		if len(urls) > len(best) {
			best = urls
		}
	}

	if len(best) == 0 {
		best = plainEpisodeURLs(raw)
	}
	if len(best) == 0 {
		return nil
	}

	return lo.Uniq(best)
}

// plainEpisodeURLs handles groups without m3u8 links (direct mp4 and the like)
// by taking the url half of each "name$url" pair in the first group.
func plainEpisodeURLs(raw string) []string {
	group := strings.Split(raw, "$$$")[0]
	var urls []string
	for _, ep := range strings.Split(group, "#") {
		parts := strings.Split(ep, "$")
		u := strings.TrimSpace(parts[len(parts)-1])
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			urls = append(urls, stripSuffix(u))
		}
	}
	return urls
}

// stripSuffix drops the "(...)" decoration some catalogs append to links.
func stripSuffix(u string) string {
	if i := strings.Index(u, "("); i > 0 {
		return u[:i]
	}
	return u
}

// cleanText strips HTML tags and collapses whitespace in descriptions.
func cleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// toCandidate converts a vod entry into a candidate of the given source.
func toCandidate(v vod, sourceKey, sourceName string) media.Candidate {
	desc := v.Content
	if desc == "" {
		desc = v.Blurb
	}
	return media.Candidate{
		Source:      sourceKey,
		ID:          string(v.ID),
		Title:       strings.TrimSpace(v.Name),
		Year:        parseYear(string(v.Year)),
		Poster:      v.Pic,
		Episodes:    parsePlayURL(v.PlayURL),
		SourceName:  sourceName,
		Description: cleanText(desc),
		TypeName:    v.TypeName,
	}
}
