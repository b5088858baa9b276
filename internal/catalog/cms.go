package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"vodpick/internal/config"
	"vodpick/internal/httputil"
	"vodpick/internal/media"
)

// CMSClient talks to one Apple-CMS style JSON endpoint. When the source
// has a detail site configured, detail lookups scrape its HTML page instead
// of the JSON endpoint.
type CMSClient struct {
	key      string
	name     string
	api      string
	html     *HTMLDetail
	maxPages int
	client   *http.Client
	log      zerolog.Logger
}

// NewCMSClient creates a client for a configured source.
func NewCMSClient(src config.Source, maxPages int, client *http.Client, log zerolog.Logger) *CMSClient {
	if client == nil {
		client = httputil.NewClient()
	}
	if maxPages < 1 {
		maxPages = 1
	}
	name := src.Name
	if name == "" {
		name = src.Key
	}
	c := &CMSClient{
		key:      src.Key,
		name:     name,
		api:      src.API,
		maxPages: maxPages,
		client:   client,
		log:      log.With().Str("source", src.Key).Logger(),
	}
	if src.Detail != "" {
		c.html = NewHTMLDetail(src.Detail, client)
	}
	return c
}

func (c *CMSClient) Key() string  { return c.key }
func (c *CMSClient) Name() string { return c.name }

// Search fetches the first result page and, if the catalog reports more,
// further pages up to the configured limit. Failing extra pages are logged
// and skipped; only a failing first page is an error.
func (c *CMSClient) Search(ctx context.Context, title string) ([]media.Candidate, error) {
	first, err := c.fetchList(ctx, url.Values{"ac": {"videolist"}, "wd": {title}})
	if err != nil {
		return nil, fmt.Errorf("searching %s for %q: %w", c.key, title, err)
	}

	entries := first.List
	pages := min(first.PageCount.Int(), c.maxPages)
	for page := 2; page <= pages; page++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := c.fetchList(ctx, url.Values{
			"ac": {"videolist"},
			"wd": {title},
			"pg": {fmt.Sprint(page)},
		})
		if err != nil {
			c.log.Debug().Err(err).Int("page", page).Msg("extra search page failed")
			break
		}
		entries = append(entries, resp.List...)
	}

	candidates := make([]media.Candidate, 0, len(entries))
	for _, v := range entries {
		if string(v.ID) == "" {
			continue
		}
		candidates = append(candidates, toCandidate(v, c.key, c.name))
	}
	return candidates, nil
}

// Detail returns one entry by id.
func (c *CMSClient) Detail(ctx context.Context, id string) (media.Candidate, error) {
	if err := httputil.ValidateID(id); err != nil {
		return media.Candidate{}, fmt.Errorf("invalid id for %s: %w", c.key, err)
	}

	if c.html != nil {
		cand, err := c.html.Fetch(ctx, id)
		if err != nil {
			return media.Candidate{}, err
		}
		cand.Source = c.key
		cand.SourceName = c.name
		return cand, nil
	}

	resp, err := c.fetchList(ctx, url.Values{"ac": {"videolist"}, "ids": {id}})
	if err != nil {
		return media.Candidate{}, fmt.Errorf("detail %s/%s: %w", c.key, id, err)
	}
	if len(resp.List) == 0 {
		return media.Candidate{}, fmt.Errorf("detail %s/%s: %w", c.key, id, media.ErrNotFound)
	}
	cand := toCandidate(resp.List[0], c.key, c.name)
	if cand.ID == "" {
		cand.ID = id
	}
	return cand, nil
}

func (c *CMSClient) fetchList(ctx context.Context, params url.Values) (*listResponse, error) {
	u, err := url.Parse(c.api)
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	body, err := httputil.GetJSON(ctx, c.client, u.String())
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", c.key, err)
	}
	return &resp, nil
}
