package resolve

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/mo"
	"github.com/sourcegraph/conc"

	"vodpick/internal/media"
)

const (
	subscriberBuffer = 64
	writeQueueSize   = 32
	writeTimeout     = 5 * time.Second
)

// Options configures an Orchestrator.
type Options struct {
	Catalog     Catalog
	Prober      SegmentProber
	Store       ResumeStore // optional
	Concurrency int         // probe budget, DefaultProbeConcurrency when zero
	Logger      zerolog.Logger
}

// Orchestrator owns the current resolution session. It deduplicates
// requests, supersedes stale sessions and publishes the playback target.
// Only events carrying the current generation reach observable state.
type Orchestrator struct {
	deps sessionDeps
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	writes chan media.PlayRecord

	mu         sync.Mutex
	closed     bool
	generation uint64
	accepted   mo.Option[Request] // as submitted
	synced     mo.Option[Request] // accepted, rewritten to the committed target
	session    *Session
	status     Status
	failure    *Failure
	target     mo.Option[media.PlaybackTarget]
	query      media.Query // query that produced target
	current    media.Candidate
	position   float64
	done       chan struct{}
	doneClosed bool
	subs       map[int]chan Event
	nextSub    int
}

// NewOrchestrator creates an orchestrator and starts its persistence writer.
func NewOrchestrator(opts Options) *Orchestrator {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultProbeConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		deps: sessionDeps{
			catalog: opts.Catalog,
			prober:  NewCandidateProber(opts.Prober),
			store:   opts.Store,
			limit:   limit,
		},
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		writes: make(chan media.PlayRecord, writeQueueSize),
		status: StatusIdle,
		done:   make(chan struct{}),
		subs:   make(map[int]chan Event),
	}
	o.wg.Go(o.writeLoop)
	return o
}

// Resolve starts a resolution for req. A request equal to the last accepted
// one, or to its synced form after a commit, is a no-op and reports
// accepted == false.
func (o *Orchestrator) Resolve(req Request) (accepted bool, err error) {
	accepted, _, err = o.ResolveGeneration(req)
	return accepted, err
}

// ResolveGeneration is Resolve that also returns the generation in effect
// once the request has been handled.
func (o *Orchestrator) ResolveGeneration(req Request) (accepted bool, generation uint64, err error) {
	if err := req.validate(); err != nil {
		return false, 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false, o.generation, ErrClosed
	}
	if o.isDuplicateLocked(req) {
		o.log.Debug().Msg("duplicate request ignored")
		return false, o.generation, nil
	}

	o.accepted = mo.Some(req)
	o.synced = mo.None[Request]()
	o.generation++
	if o.session != nil && o.session.Supersede() {
		o.log.Debug().Str("session", o.session.ID()).Msg("superseded by new request")
	}

	var s *Session
	s = newSession(o.ctx, o.generation, req, o.deps, o.log, func(ev Event) { o.handle(s, ev) })
	o.session = s
	o.status = StatusIdle
	o.failure = nil
	o.resetDoneLocked()

	o.wg.Go(s.run)
	return true, o.generation, nil
}

func (o *Orchestrator) isDuplicateLocked(req Request) bool {
	if prev, ok := o.accepted.Get(); ok && prev.Equal(req) {
		return true
	}
	prev, ok := o.synced.Get()
	return ok && prev.Equal(req)
}

// syncLocked points the synced request at t.
func (o *Orchestrator) syncLocked(t media.PlaybackTarget) {
	if req, ok := o.accepted.Get(); ok {
		o.synced = mo.Some(req.synced(t))
	}
}

// handle applies a session event if the session is still current.
func (o *Orchestrator) handle(s *Session, ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.session != s || ev.Generation != o.generation {
		return
	}

	switch ev.Type {
	case EventStatus:
		o.status = ev.Status
	case EventFailed:
		o.status = StatusFailed
		o.failure = ev.Failure
		o.closeDoneLocked()
	case EventCommitted:
		t := *ev.Target
		o.status = StatusCommitted
		o.target = mo.Some(t)
		o.current = s.committedCandidate()
		o.position = t.ResumeSeconds.OrEmpty()
		o.query = s.req.Query
		o.syncLocked(t)
		o.enqueueLocked()
		o.closeDoneLocked()
	}

	o.publishLocked(ev)
}

// SwitchSource moves playback to another already discovered candidate
// without probing. The episode is kept when the new source has it, and the
// last reported position carries over.
func (o *Orchestrator) SwitchSource(ref media.SourceRef) (media.PlaybackTarget, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return media.PlaybackTarget{}, ErrClosed
	}
	if o.session == nil {
		return media.PlaybackTarget{}, ErrNoTarget
	}
	c, ok := o.session.candidate(ref)
	if !ok {
		return media.PlaybackTarget{}, fmt.Errorf("switching to %s: %w", ref, media.ErrNotFound)
	}

	episode := 0
	if t, ok := o.target.Get(); ok && t.Episode < len(c.Episodes) {
		episode = t.Episode
	}
	target := media.PlaybackTarget{Source: c.Source, ID: c.ID, Episode: episode}
	if o.position > 0 {
		target.ResumeSeconds = mo.Some(o.position)
	}

	// A manual choice must not be overwritten by a session still probing.
	if o.session.Supersede() {
		o.generation++
	}

	o.target = mo.Some(target)
	o.query = o.session.req.Query
	o.current = c
	o.status = StatusCommitted
	o.failure = nil
	o.syncLocked(target)
	o.closeDoneLocked()
	o.enqueueLocked()
	o.publishLocked(o.targetEvent(target))

	o.log.Info().Str("ref", ref.String()).Int("episode", episode).Msg("source switched")
	return target, nil
}

// AdvanceEpisode moves the episode index by direction, clamped to the
// current candidate's episodes. The resume position resets.
func (o *Orchestrator) AdvanceEpisode(direction int) (media.PlaybackTarget, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return media.PlaybackTarget{}, ErrClosed
	}
	t, ok := o.target.Get()
	if !ok {
		return media.PlaybackTarget{}, ErrNoTarget
	}

	last := max(len(o.current.Episodes)-1, 0)
	idx := min(max(t.Episode+direction, 0), last)
	if idx == t.Episode {
		return t, nil
	}

	t.Episode = idx
	t.ResumeSeconds = mo.None[float64]()
	o.position = 0
	o.target = mo.Some(t)
	// A newer request still resolving keeps its own input tuple.
	if o.status == StatusCommitted {
		o.syncLocked(t)
	}
	o.enqueueLocked()
	o.publishLocked(o.targetEvent(t))
	return t, nil
}

// ReportPosition records the player's position in the current episode.
func (o *Orchestrator) ReportPosition(seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.target.IsAbsent() || seconds < 0 {
		return
	}
	o.position = seconds
	o.enqueueLocked()
}

// Status returns the status of the current resolution.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Current returns the candidate and target that play now.
func (o *Orchestrator) Current() (media.Candidate, media.PlaybackTarget, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.target.Get()
	return o.current, t, ok
}

// SyncedRequest returns the last accepted request. After a commit it points
// at the committed source with PreferBest cleared, which is what callers
// store in history or links.
func (o *Orchestrator) SyncedRequest() mo.Option[Request] {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.synced.IsPresent() {
		return o.synced
	}
	return o.accepted
}

// CandidateView is a discovered candidate with what probing learned about it.
type CandidateView struct {
	media.Candidate
	Probe   *media.ProbeResult `json:"probe,omitempty"`
	Score   float64            `json:"score"`
	Current bool               `json:"current"`
}

// Snapshot is the observable state of the orchestrator.
type Snapshot struct {
	SessionID  string                `json:"sessionId,omitempty"`
	Generation uint64                `json:"generation"`
	Status     Status                `json:"status"`
	Failure    *Failure              `json:"failure,omitempty"`
	Target     *media.PlaybackTarget `json:"target,omitempty"`
	Position   float64               `json:"position"`
	Candidates []CandidateView       `json:"candidates"`
}

// Snapshot returns the current state with candidates in discovery order.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		Generation: o.generation,
		Status:     o.status,
		Failure:    o.failure,
		Position:   o.position,
		Candidates: []CandidateView{},
	}
	if t, ok := o.target.Get(); ok {
		snap.Target = &t
	}
	if o.session == nil {
		return snap
	}
	snap.SessionID = o.session.ID()

	cands := o.session.Candidates()
	probes := o.session.Probes()
	ranked, _ := Rank(cands, probes)
	scores := make(map[string]float64, len(ranked))
	for _, sc := range ranked {
		scores[sc.Candidate.Key()] = sc.Score
	}

	for _, c := range cands {
		v := CandidateView{Candidate: c, Score: scores[c.Key()]}
		if p, ok := probes[c.Key()]; ok {
			v.Probe = &p
		}
		if snap.Target != nil && snap.Target.Ref() == c.Ref() {
			v.Current = true
		}
		snap.Candidates = append(snap.Candidates, v)
	}
	return snap
}

// Await blocks until the current resolution commits or fails. A failure is
// returned as a *Failure error.
func (o *Orchestrator) Await(ctx context.Context) (media.PlaybackTarget, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return media.PlaybackTarget{}, ErrClosed
		}
		status, failure, target, done := o.status, o.failure, o.target, o.done
		o.mu.Unlock()

		switch status {
		case StatusCommitted:
			return target.MustGet(), nil
		case StatusFailed:
			return media.PlaybackTarget{}, failure
		}

		select {
		case <-ctx.Done():
			return media.PlaybackTarget{}, ctx.Err()
		case <-done:
		}
	}
}

// Subscribe returns a channel of events and a function to stop them. Slow
// subscribers miss events rather than block the engine.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
	}
}

// Close cancels all work, flushes pending writes and closes subscriptions.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.session != nil {
		o.session.Supersede()
	}
	o.generation++
	subs := o.subs
	o.subs = nil
	o.closeDoneLocked()
	close(o.writes)
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()

	for _, ch := range subs {
		close(ch)
	}
}

func (o *Orchestrator) targetEvent(t media.PlaybackTarget) Event {
	ev := Event{
		Type:       EventTarget,
		Generation: o.generation,
		Status:     StatusCommitted,
		Target:     &t,
		Time:       time.Now(),
	}
	if o.session != nil {
		ev.SessionID = o.session.ID()
	}
	return ev
}

func (o *Orchestrator) publishLocked(ev Event) {
	for id, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.log.Debug().Int("subscriber", id).Str("event", string(ev.Type)).Msg("subscriber full, event dropped")
		}
	}
}

func (o *Orchestrator) resetDoneLocked() {
	if o.doneClosed {
		o.done = make(chan struct{})
		o.doneClosed = false
	}
}

func (o *Orchestrator) closeDoneLocked() {
	if !o.doneClosed {
		close(o.done)
		o.doneClosed = true
	}
}

// enqueueLocked queues the current position for persistence. Writes are
// applied in order by a single goroutine and never block the caller.
func (o *Orchestrator) enqueueLocked() {
	if o.deps.store == nil {
		return
	}
	t, ok := o.target.Get()
	if !ok {
		return
	}
	rec := media.PlayRecord{
		ResumePosition: media.ResumePosition{
			Source:        t.Source,
			ID:            t.ID,
			Title:         o.current.Title,
			Episode:       t.Episode,
			TotalEpisodes: len(o.current.Episodes),
			Seconds:       o.position,
		},
		Year:        o.current.Year,
		Poster:      o.current.Poster,
		SearchTitle: o.query.LookupTitle(),
	}
	select {
	case o.writes <- rec:
	default:
		o.log.Warn().Str("ref", t.Ref().String()).Msg("persistence queue full, position not saved")
	}
}

func (o *Orchestrator) writeLoop() {
	for rec := range o.writes {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := o.deps.store.SaveResumePosition(ctx, rec); err != nil {
			o.log.Warn().Err(err).Str("source", rec.Source).Str("id", rec.ID).Msg("saving resume position")
		}
		cancel()
	}
}
