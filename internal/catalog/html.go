package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"vodpick/internal/httputil"
	"vodpick/internal/media"
)

// HTMLDetail scrapes a catalog site's detail page for sources whose JSON API
// omits play urls.
type HTMLDetail struct {
	base   string
	client *http.Client
}

// NewHTMLDetail creates a scraper rooted at base, e.g. "https://site.example".
func NewHTMLDetail(base string, client *http.Client) *HTMLDetail {
	if client == nil {
		client = httputil.NewClient()
	}
	return &HTMLDetail{base: base, client: client}
}

// Fetch loads and parses the detail page for id.
func (h *HTMLDetail) Fetch(ctx context.Context, id string) (media.Candidate, error) {
	pageURL, err := httputil.JoinURL(h.base, "index.php", "vod", "detail", "id", id+".html")
	if err != nil {
		return media.Candidate{}, err
	}

	doc, err := h.fetchDocument(ctx, pageURL)
	if err != nil {
		return media.Candidate{}, fmt.Errorf("detail page %s: %w", id, err)
	}

	cand := parseDetailPage(doc)
	cand.ID = id
	if len(cand.Episodes) == 0 {
		return media.Candidate{}, fmt.Errorf("detail page %s has no playable links: %w", id, media.ErrNotFound)
	}
	return cand, nil
}

// fetchDocument fetches a URL and parses it into a goquery Document.
func (h *HTMLDetail) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := httputil.Get(ctx, h.client, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, media.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{Code: resp.StatusCode, URL: pageURL}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// parseDetailPage extracts metadata and m3u8 links from a detail page.
// Links come from play-list anchors and from inline player scripts.
func parseDetailPage(doc *goquery.Document) media.Candidate {
	cand := media.Candidate{}

	cand.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	if cand.Title == "" {
		cand.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if poster, ok := doc.Find(".module-item-pic img, .stui-content__thumb img").First().Attr("data-src"); ok {
		cand.Poster = poster
	} else if poster, ok := doc.Find(".module-item-pic img, .stui-content__thumb img").First().Attr("src"); ok {
		cand.Poster = poster
	}

	cand.Description = cleanText(doc.Find(".sqjj_a, .vod_content, .detail-content").First().Text())
	cand.Year = parseYear(doc.Find(".tag-link a, .data .year").First().Text())

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if strings.HasSuffix(href, ".m3u8") && httputil.ValidateURL(href) == nil {
			links = append(links, href)
		}
	})
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range m3u8Pattern.FindAllStringSubmatch(s.Text(), -1) {
			links = append(links, stripSuffix(m[1]))
		}
	})

	cand.Episodes = lo.Uniq(links)
	return cand
}
