package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/sourcegraph/conc/pool"

	"vodpick/internal/media"
)

// DefaultRecentHours is the update window used when none is given.
const DefaultRecentHours = 24

// RecentLister is a source that can list recently updated entries.
type RecentLister interface {
	Recent(ctx context.Context, hours int) ([]media.Candidate, error)
}

// Recent returns the first page of entries updated in the last hours.
func (c *CMSClient) Recent(ctx context.Context, hours int) ([]media.Candidate, error) {
	if hours <= 0 {
		hours = DefaultRecentHours
	}
	resp, err := c.fetchList(ctx, url.Values{"ac": {"videolist"}, "h": {fmt.Sprint(hours)}})
	if err != nil {
		return nil, fmt.Errorf("listing recent on %s: %w", c.key, err)
	}
	candidates := make([]media.Candidate, 0, len(resp.List))
	for _, v := range resp.List {
		if string(v.ID) == "" {
			continue
		}
		candidates = append(candidates, toCandidate(v, c.key, c.name))
	}
	return candidates, nil
}

// Recent lists recent updates of every source that supports it, in
// configuration order. Results are not cached.
func (a *Aggregator) Recent(ctx context.Context, hours int) ([]media.Candidate, error) {
	var listers []Source
	for _, s := range a.sources {
		if _, ok := s.(RecentLister); ok {
			listers = append(listers, s)
		}
	}
	if len(listers) == 0 {
		return nil, ErrNoSources
	}

	perSource := make([][]media.Candidate, len(listers))
	errs := make([]error, len(listers))

	p := pool.New().WithMaxGoroutines(len(listers))
	for i, src := range listers {
		p.Go(func() {
			a.limiters[src.Key()].Take()
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return
			}
			perSource[i], errs[i] = src.(RecentLister).Recent(ctx, hours)
		})
	}
	p.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var results []media.Candidate
	failed := 0
	for i, src := range listers {
		if errs[i] != nil {
			failed++
			a.log.Warn().Err(errs[i]).Str("source", src.Key()).Msg("listing recent failed")
			continue
		}
		results = append(results, perSource[i]...)
	}
	if failed == len(listers) {
		return nil, fmt.Errorf("all %d sources failed: %w", failed, errors.Join(errs...))
	}
	return results, nil
}
