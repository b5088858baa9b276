package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mhmtszr/concurrent-swiss-map"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"vodpick/internal/media"
)

// Catalog is the discovery side of the engine.
type Catalog interface {
	// Search returns unfiltered entries for a free-text title.
	Search(ctx context.Context, title string) ([]media.Candidate, error)

	// Detail returns one entry, or an error wrapping media.ErrNotFound.
	Detail(ctx context.Context, ref media.SourceRef) (media.Candidate, error)
}

// ResumeStore persists playback positions.
type ResumeStore interface {
	GetResumePosition(ctx context.Context, ref media.SourceRef) (mo.Option[media.ResumePosition], error)
	SaveResumePosition(ctx context.Context, rec media.PlayRecord) error
}

// Request is the full input tuple of a resolution.
type Request struct {
	Query      media.Query
	Hint       mo.Option[media.SourceRef] // explicit source to prefer
	PreferBest bool                       // probe even when Hint is discovered
	Episode    mo.Option[int]             // episode already in effect
}

// Equal compares every field of the tuple.
func (r Request) Equal(o Request) bool {
	return r.Query.Equal(o.Query) &&
		r.Hint.IsPresent() == o.Hint.IsPresent() &&
		r.Hint.OrEmpty() == o.Hint.OrEmpty() &&
		r.PreferBest == o.PreferBest &&
		r.Episode.IsPresent() == o.Episode.IsPresent() &&
		r.Episode.OrEmpty() == o.Episode.OrEmpty()
}

func (r Request) validate() error {
	if r.Hint.IsAbsent() && r.Query.LookupTitle() == "" {
		return ErrMissingParameters
	}
	return nil
}

// synced is the request that reproduces a committed target without probing.
func (r Request) synced(t media.PlaybackTarget) Request {
	return Request{
		Query:   r.Query,
		Hint:    mo.Some(t.Ref()),
		Episode: mo.Some(t.Episode),
	}
}

// sessionDeps are the collaborators a session drives.
type sessionDeps struct {
	catalog Catalog
	prober  *CandidateProber
	store   ResumeStore
	limit   int
}

// Session owns one resolution attempt: discovery, probing, scoring and
// commit. Once superseded it performs no further writes.
type Session struct {
	id         uuid.UUID
	generation uint64
	req        Request
	deps       sessionDeps
	log        zerolog.Logger
	notify     func(Event)

	ctx    context.Context
	cancel context.CancelFunc

	probes *csmap.CsMap[string, media.ProbeResult]

	mu         sync.Mutex
	status     Status
	candidates []media.Candidate
	winner     media.Candidate
	committed  mo.Option[media.PlaybackTarget]
	failure    *Failure
	tested     int
}

func newSession(parent context.Context, generation uint64, req Request, deps sessionDeps, log zerolog.Logger, notify func(Event)) *Session {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.New()
	if notify == nil {
		notify = func(Event) {}
	}
	return &Session{
		id:         id,
		generation: generation,
		req:        req,
		deps:       deps,
		log:        log.With().Str("session", id.String()).Uint64("generation", generation).Logger(),
		notify:     notify,
		ctx:        ctx,
		cancel:     cancel,
		probes:     csmap.Create[string, media.ProbeResult](),
		status:     StatusIdle,
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id.String() }

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Candidates returns the discovered candidates in discovery order.
func (s *Session) Candidates() []media.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidates
}

// Probes returns a copy of the recorded probe results.
func (s *Session) Probes() map[string]media.ProbeResult {
	out := make(map[string]media.ProbeResult, s.probes.Count())
	s.probes.Range(func(key string, value media.ProbeResult) bool {
		out[key] = value
		return false
	})
	return out
}

// Committed returns the committed target, if any.
func (s *Session) Committed() mo.Option[media.PlaybackTarget] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Failure returns why the session failed, or nil.
func (s *Session) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *Session) candidate(ref media.SourceRef) (media.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Find(s.candidates, func(c media.Candidate) bool { return c.Ref() == ref })
}

func (s *Session) committedCandidate() media.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// Supersede cancels a session that has not reached a terminal state. It
// reports whether the session was live.
func (s *Session) Supersede() bool {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.status = StatusSuperseded
	s.mu.Unlock()

	s.cancel()
	s.log.Debug().Msg("superseded")
	return true
}

func (s *Session) superseded() bool {
	return s.Status() == StatusSuperseded
}

// run drives the state machine to a terminal state.
func (s *Session) run() {
	defer s.cancel()

	if !s.transition(StatusIdle, StatusDiscovering) {
		return
	}

	seed := s.loadSeed()

	cands, failure := s.discover()
	if s.ctx.Err() != nil {
		return
	}
	if failure != nil {
		s.fail(failure)
		return
	}

	s.mu.Lock()
	s.candidates = cands
	s.mu.Unlock()
	s.emit(Event{Type: EventCandidates, Status: StatusDiscovering, Total: len(cands), Candidates: cands})

	if len(cands) == 0 {
		s.fail(&Failure{
			Kind:   FailureNotFound,
			Reason: fmt.Sprintf("no source has %q", s.req.Query.LookupTitle()),
			Err:    media.ErrNotFound,
		})
		return
	}

	if hint, ok := s.req.Hint.Get(); ok && !s.req.PreferBest {
		if c, found := lo.Find(cands, func(c media.Candidate) bool { return c.Ref() == hint }); found {
			s.commit(c, seed, "explicit source")
			return
		}
	}

	if len(cands) == 1 {
		s.commit(cands[0], seed, "only source")
		return
	}

	if !s.transition(StatusDiscovering, StatusProbing) {
		return
	}

	start := time.Now()
	s.probeAll(cands)
	if s.superseded() {
		return
	}

	ranked, ok := Rank(cands, s.Probes())
	if !ok {
		s.log.Warn().Int("candidates", len(cands)).Msg("every probe failed, falling back to first source")
		s.commit(cands[0], seed, "first discovered")
		return
	}

	best := ranked[0]
	s.log.Info().
		Str("winner", best.Candidate.Ref().String()).
		Float64("score", best.Score).
		Dur("took", time.Since(start)).
		Msg("probing complete")
	s.commit(best.Candidate, seed, "best score")
}

// loadSeed reads the saved position of the hinted source once.
func (s *Session) loadSeed() mo.Option[media.ResumePosition] {
	hint, ok := s.req.Hint.Get()
	if !ok || s.deps.store == nil {
		return mo.None[media.ResumePosition]()
	}
	pos, err := s.deps.store.GetResumePosition(s.ctx, hint)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn().Err(err).Str("ref", hint.String()).Msg("reading resume position")
		}
		return mo.None[media.ResumePosition]()
	}
	return pos
}

// discover searches the catalog, filters to the query and appends the
// explicit hint via a detail lookup when search did not produce it.
func (s *Session) discover() ([]media.Candidate, *Failure) {
	var cands []media.Candidate
	var searchErr error

	if title := s.req.Query.LookupTitle(); title != "" {
		found, err := s.deps.catalog.Search(s.ctx, title)
		if err != nil {
			searchErr = err
		} else {
			cands = filterCandidates(found, s.req.Query)
		}
	}

	hint, hasHint := s.req.Hint.Get()
	if searchErr != nil && !hasHint {
		return nil, discoveryFailure(searchErr)
	}

	if hasHint && !lo.ContainsBy(cands, func(c media.Candidate) bool { return c.Ref() == hint }) {
		c, err := s.deps.catalog.Detail(s.ctx, hint)
		switch {
		case errors.Is(err, media.ErrNotFound):
			if searchErr != nil {
				return nil, discoveryFailure(searchErr)
			}
			return nil, &Failure{
				Kind:   FailureNotFound,
				Reason: fmt.Sprintf("source %s not found", hint),
				Err:    err,
			}
		case err != nil:
			return nil, discoveryFailure(err)
		}
		if searchErr != nil {
			s.log.Warn().Err(searchErr).Msg("search failed, continuing with explicit source")
		}
		c.Source, c.ID = hint.Source, hint.ID
		cands = append(cands, c)
	}

	return lo.UniqBy(cands, media.Candidate.Key), nil
}

func discoveryFailure(err error) *Failure {
	return &Failure{Kind: FailureDiscovery, Reason: err.Error(), Err: err}
}

// filterCandidates keeps entries whose title, year and type match q.
func filterCandidates(found []media.Candidate, q media.Query) []media.Candidate {
	titles := lo.Uniq(lo.Filter([]string{
		media.NormalizeTitle(q.Title),
		media.NormalizeTitle(q.SearchTitle),
	}, func(t string, _ int) bool { return t != "" }))
	year := strings.TrimSpace(q.Year)

	return lo.Filter(found, func(c media.Candidate, _ int) bool {
		if !lo.Contains(titles, media.NormalizeTitle(c.Title)) {
			return false
		}
		if year != "" && !strings.EqualFold(c.Year, year) {
			return false
		}
		if t, ok := q.Type.Get(); ok {
			switch t {
			case media.Movie:
				return len(c.Episodes) == 1
			case media.TV:
				return len(c.Episodes) > 1
			}
		}
		return true
	})
}

// probeAll runs every candidate through the limiter. Each settled outcome
// is recorded as soon as it arrives.
func (s *Session) probeAll(cands []media.Candidate) {
	tasks := lo.Map(cands, func(c media.Candidate, _ int) Task[ProbeOutcome] {
		return func(ctx context.Context) ProbeOutcome {
			out := s.deps.prober.Probe(ctx, c)
			s.record(c, out)
			return out
		}
	})
	Run(s.ctx, s.deps.limit, tasks)
}

// record stores a settled outcome unless the session stopped probing or the
// candidate already has a result.
func (s *Session) record(c media.Candidate, out ProbeOutcome) {
	if out.Kind == OutcomeAborted {
		return
	}

	s.mu.Lock()
	if s.status != StatusProbing {
		s.mu.Unlock()
		return
	}
	if _, exists := s.probes.Load(c.Key()); exists {
		s.mu.Unlock()
		return
	}
	s.probes.Store(c.Key(), out.Result)
	s.tested++
	tested, total := s.tested, len(s.candidates)
	s.mu.Unlock()

	if out.Err != nil {
		s.log.Debug().Err(out.Err).Msg("candidate probe failed")
	}

	ref := c.Ref()
	res := out.Result
	s.emit(Event{Type: EventProbe, Status: StatusProbing, Ref: &ref, Probe: &res, Tested: tested, Total: total})
}

// commit publishes the target for c. The episode already in effect wins,
// then the saved position of the same source, then 0.
func (s *Session) commit(c media.Candidate, seed mo.Option[media.ResumePosition], reason string) {
	episode := s.req.Episode.OrElse(-1)
	var resume mo.Option[float64]
	if pos, ok := seed.Get(); ok && pos.Source == c.Source && pos.ID == c.ID {
		if episode < 0 {
			episode = pos.Episode
		}
		if episode == pos.Episode && pos.Seconds > 0 {
			resume = mo.Some(pos.Seconds)
		}
	}
	if episode < 0 || (len(c.Episodes) > 0 && episode >= len(c.Episodes)) {
		episode = 0
		resume = mo.None[float64]()
	}

	target := media.PlaybackTarget{
		Source:        c.Source,
		ID:            c.ID,
		Episode:       episode,
		ResumeSeconds: resume,
	}

	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.status = StatusCommitted
	s.committed = mo.Some(target)
	s.winner = c
	s.mu.Unlock()

	s.log.Info().Str("ref", c.Ref().String()).Int("episode", episode).Str("reason", reason).Msg("committed")
	s.emit(Event{Type: EventCommitted, Status: StatusCommitted, Target: &target})
}

func (s *Session) fail(f *Failure) {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.status = StatusFailed
	s.failure = f
	s.mu.Unlock()

	s.log.Warn().Str("kind", string(f.Kind)).Str("reason", f.Reason).Msg("resolution failed")
	s.emit(Event{Type: EventFailed, Status: StatusFailed, Failure: f})
}

func (s *Session) transition(from, to Status) bool {
	s.mu.Lock()
	if s.status != from {
		s.mu.Unlock()
		return false
	}
	s.status = to
	s.mu.Unlock()

	s.emit(Event{Type: EventStatus, Status: to})
	return true
}

func (s *Session) emit(ev Event) {
	if s.superseded() {
		return
	}
	ev.SessionID = s.id.String()
	ev.Generation = s.generation
	ev.Time = time.Now()
	s.notify(ev)
}
