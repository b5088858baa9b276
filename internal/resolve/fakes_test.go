package resolve

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/samber/mo"

	"vodpick/internal/media"
)

// fakeCatalog serves canned search results. Titles listed in gates block
// until the gate closes and then return their results regardless of ctx.
type fakeCatalog struct {
	mu        sync.Mutex
	results   map[string][]media.Candidate
	details   map[string]media.Candidate
	searchErr error
	detailErr error
	gates     map[string]chan struct{}

	searches atomic.Int32
	lookups  atomic.Int32
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		results: make(map[string][]media.Candidate),
		details: make(map[string]media.Candidate),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeCatalog) add(title string, cands ...media.Candidate) *fakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[title] = append(f.results[title], cands...)
	return f
}

func (f *fakeCatalog) gate(title string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[title] = ch
	return ch
}

func (f *fakeCatalog) Search(ctx context.Context, title string) ([]media.Candidate, error) {
	f.searches.Add(1)
	f.mu.Lock()
	gate := f.gates[title]
	results, err := f.results[title], f.searchErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (f *fakeCatalog) Detail(ctx context.Context, ref media.SourceRef) (media.Candidate, error) {
	f.lookups.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return media.Candidate{}, f.detailErr
	}
	c, ok := f.details[ref.Key()]
	if !ok {
		return media.Candidate{}, media.ErrNotFound
	}
	return c, nil
}

// fakeSegments answers probes by url. Urls in block wait for ctx.
type fakeSegments struct {
	mu      sync.Mutex
	results map[string]media.ProbeResult
	block   map[string]bool
	calls   atomic.Int32
	urls    []string
}

func newFakeSegments() *fakeSegments {
	return &fakeSegments{
		results: make(map[string]media.ProbeResult),
		block:   make(map[string]bool),
	}
}

func (f *fakeSegments) set(url string, q media.Quality, speed, ping float64) *fakeSegments {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[url] = media.ProbeResult{Quality: q, SpeedKBps: speed, PingMs: ping}
	return f
}

func (f *fakeSegments) Probe(ctx context.Context, url string) (media.ProbeResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	res, ok := f.results[url]
	blocked := f.block[url]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return media.ProbeResult{}, ctx.Err()
	}
	if !ok {
		return media.ProbeResult{}, errors.New("connection refused")
	}
	return res, nil
}

// fakeStore keeps resume positions in memory.
type fakeStore struct {
	mu    sync.Mutex
	saved []media.PlayRecord
	seed  map[string]media.ResumePosition
}

func newFakeStore() *fakeStore {
	return &fakeStore{seed: make(map[string]media.ResumePosition)}
}

func (f *fakeStore) GetResumePosition(ctx context.Context, ref media.SourceRef) (mo.Option[media.ResumePosition], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pos, ok := f.seed[ref.Key()]; ok {
		return mo.Some(pos), nil
	}
	return mo.None[media.ResumePosition](), nil
}

func (f *fakeStore) SaveResumePosition(ctx context.Context, rec media.PlayRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStore) records() []media.PlayRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.PlayRecord(nil), f.saved...)
}

// eventLog collects session events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) statuses() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Status
	for _, ev := range l.events {
		if ev.Type == EventStatus {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func movie(source, id, title, year string) media.Candidate {
	return media.Candidate{
		Source:   source,
		ID:       id,
		Title:    title,
		Year:     year,
		Episodes: []string{"https://" + source + ".example.com/" + id + "/index.m3u8"},
	}
}

func series(source, id, title string, episodes int) media.Candidate {
	c := media.Candidate{Source: source, ID: id, Title: title, Year: "2021"}
	for i := range episodes {
		c.Episodes = append(c.Episodes, "https://"+source+".example.com/"+id+"/"+string(rune('a'+i))+".m3u8")
	}
	return c
}

// probeURL is the url CandidateProber picks for c.
func probeURL(c media.Candidate) string {
	if len(c.Episodes) > 1 {
		return c.Episodes[1]
	}
	return c.Episodes[0]
}
