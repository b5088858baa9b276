package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/ratelimit"

	"vodpick/internal/config"
	"vodpick/internal/media"
)

// ErrNoSources is returned when no catalog source is configured.
var ErrNoSources = errors.New("no catalog sources configured")

// Aggregator fans searches out across every configured source and routes
// detail lookups by source key.
type Aggregator struct {
	sources  []Source
	bySource map[string]Source
	limiters map[string]ratelimit.Limiter
	cache    *cache.Cache // nil when caching is disabled
	log      zerolog.Logger
}

// NewAggregator wraps already constructed sources. rates maps source keys to
// requests per second; missing or zero entries are unlimited.
func NewAggregator(sources []Source, rates map[string]int, ttl time.Duration, log zerolog.Logger) *Aggregator {
	a := &Aggregator{
		sources:  sources,
		bySource: make(map[string]Source, len(sources)),
		limiters: make(map[string]ratelimit.Limiter, len(sources)),
		log:      log,
	}
	for _, s := range sources {
		a.bySource[s.Key()] = s
		if r := rates[s.Key()]; r > 0 {
			a.limiters[s.Key()] = ratelimit.New(r)
		} else {
			a.limiters[s.Key()] = ratelimit.NewUnlimited()
		}
	}
	if ttl > 0 {
		a.cache = cache.New(ttl, 2*ttl)
	}
	return a
}

// FromConfig builds an aggregator of CMS clients for every configured source.
func FromConfig(cfg *config.Config, client *http.Client, log zerolog.Logger) *Aggregator {
	sources := make([]Source, 0, len(cfg.Sources))
	rates := make(map[string]int, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, NewCMSClient(s, cfg.SearchPages, client, log))
		rates[s.Key] = s.Rate
	}
	return NewAggregator(sources, rates, cfg.SearchCacheTTL, log)
}

// Sources returns the configured sources in configuration order.
func (a *Aggregator) Sources() []Source {
	return a.sources
}

// Search queries all sources concurrently. Results keep configuration order,
// then each source's own order. The call fails only when every source fails.
func (a *Aggregator) Search(ctx context.Context, title string) ([]media.Candidate, error) {
	if len(a.sources) == 0 {
		return nil, ErrNoSources
	}

	// Upstream search is case and spacing sensitive, so only collapsed
	// whitespace is shared between queries.
	title = strings.Join(strings.Fields(title), " ")
	key := title
	if a.cache != nil {
		if cached, ok := a.cache.Get(key); ok {
			if results, ok := cached.([]media.Candidate); ok {
				a.log.Debug().Str("query", title).Int("results", len(results)).Msg("search cache hit")
				return results, nil
			}
		}
	}

	perSource := make([][]media.Candidate, len(a.sources))
	errs := make([]error, len(a.sources))

	p := pool.New().WithMaxGoroutines(len(a.sources))
	for i, src := range a.sources {
		p.Go(func() {
			a.limiters[src.Key()].Take()
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return
			}
			perSource[i], errs[i] = src.Search(ctx, title)
		})
	}
	p.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var results []media.Candidate
	failed := 0
	for i, src := range a.sources {
		if errs[i] != nil {
			failed++
			a.log.Warn().Err(errs[i]).Str("source", src.Key()).Msg("source search failed")
			continue
		}
		results = append(results, perSource[i]...)
	}

	if failed == len(a.sources) {
		return nil, fmt.Errorf("all %d sources failed: %w", failed, errors.Join(errs...))
	}

	a.log.Debug().Str("query", title).Int("results", len(results)).Int("failedSources", failed).Msg("search complete")

	// Partial failures are not cached so the next attempt can fill them in.
	if a.cache != nil && failed == 0 {
		a.cache.Set(key, results, cache.DefaultExpiration)
	}
	return results, nil
}

// Detail looks up one entry on the source named by ref.
func (a *Aggregator) Detail(ctx context.Context, ref media.SourceRef) (media.Candidate, error) {
	src, ok := a.bySource[ref.Source]
	if !ok {
		return media.Candidate{}, fmt.Errorf("unknown source %q: %w", ref.Source, media.ErrNotFound)
	}
	a.limiters[ref.Source].Take()
	if err := ctx.Err(); err != nil {
		return media.Candidate{}, err
	}
	return src.Detail(ctx, ref.ID)
}
