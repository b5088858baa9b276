package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodpick/internal/media"
	"vodpick/internal/resolve"
	"vodpick/internal/store"
)

type fakeCatalog struct {
	mu      sync.Mutex
	results map[string][]media.Candidate
}

func (f *fakeCatalog) Search(ctx context.Context, title string) ([]media.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[title], nil
}

func (f *fakeCatalog) Detail(ctx context.Context, ref media.SourceRef) (media.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cands := range f.results {
		for _, c := range cands {
			if c.Ref() == ref {
				return c, nil
			}
		}
	}
	return media.Candidate{}, media.ErrNotFound
}

type fakeProber map[string]media.ProbeResult

func (f fakeProber) Probe(ctx context.Context, url string) (media.ProbeResult, error) {
	if res, ok := f[url]; ok {
		return res, nil
	}
	return media.ProbeResult{}, errors.New("connection refused")
}

func series(source, id string, n int) media.Candidate {
	c := media.Candidate{Source: source, ID: id, Title: "Night Harbor", Year: "2021", SourceName: strings.ToUpper(source)}
	for i := range n {
		c.Episodes = append(c.Episodes, "https://"+source+".example.com/"+id+"/"+string(rune('a'+i))+".m3u8")
	}
	return c
}

type testEnv struct {
	srv   *Server
	orch  *resolve.Orchestrator
	store *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	alpha, beta := series("alpha", "1", 3), series("beta", "2", 3)
	catalog := &fakeCatalog{results: map[string][]media.Candidate{
		"Night Harbor": {alpha, beta},
	}}
	prober := fakeProber{
		alpha.Episodes[1]: {Quality: media.Quality720p, SpeedKBps: 900, PingMs: 80},
		beta.Episodes[1]:  {Quality: media.Quality1080p, SpeedKBps: 2048, PingMs: 40},
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "vodpick.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	orch := resolve.NewOrchestrator(resolve.Options{
		Catalog:     catalog,
		Prober:      prober,
		Store:       st,
		Concurrency: 4,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(orch.Close)

	srv := NewServer(orch, catalog, st, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return &testEnv{srv: srv, orch: orch, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) resolveAndWait(t *testing.T) media.PlaybackTarget {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/resolve", `{"title":"Night Harbor"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"accepted":true,"generation":1}`, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	target, err := e.orch.Await(ctx)
	require.NoError(t, err)
	return target
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestResolveAndState(t *testing.T) {
	env := newTestEnv(t)
	target := env.resolveAndWait(t)
	assert.Equal(t, media.SourceRef{Source: "beta", ID: "2"}, target.Ref())

	rec := env.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap resolve.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, resolve.StatusCommitted, snap.Status)
	require.NotNil(t, snap.Target)
	assert.Equal(t, "beta", snap.Target.Source)
	require.Len(t, snap.Candidates, 2)
	assert.Equal(t, "alpha", snap.Candidates[0].Source)
	assert.True(t, snap.Candidates[1].Current)

	// The same request again is a no-op.
	rec = env.do(t, http.MethodPost, "/api/resolve", `{"title":"Night Harbor"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"accepted":false,"generation":1}`, rec.Body.String())
}

func TestResolveValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"no title or source", `{}`},
		{"bad type", `{"title":"Night Harbor","type":"opera"}`},
		{"bad source key", `{"title":"Night Harbor","source":"Not A Key","id":"1"}`},
		{"negative episode", `{"title":"Night Harbor","episode":-1}`},
		{"malformed", `{"title":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/resolve", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestTargetOperations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/source", `{"source":"alpha","id":"1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.resolveAndWait(t)

	rec = env.do(t, http.MethodPost, "/api/source", `{"source":"gamma","id":"9"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/episode", `{"direction":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var target media.PlaybackTarget
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &target))
	assert.Equal(t, 1, target.Episode)

	rec = env.do(t, http.MethodPost, "/api/position", `{"seconds":42}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/source", `{"source":"alpha","id":"1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &target))
	assert.Equal(t, "alpha", target.Source)
	assert.Equal(t, 1, target.Episode)
	assert.Equal(t, 42.0, target.ResumeSeconds.OrEmpty())

	rec = env.do(t, http.MethodPost, "/api/episode", `{"direction":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/position", `{"seconds":-3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/search?q=Night+Harbor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []media.Candidate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 2)

	rec = env.do(t, http.MethodGet, "/api/search?q=Nothing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	env.resolveAndWait(t)

	var records []media.PlayRecord
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/history", "")
		if rec.Code != http.StatusOK {
			return false
		}
		records = nil
		return json.Unmarshal(rec.Body.Bytes(), &records) == nil && len(records) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "beta", records[0].Source)
	assert.Equal(t, "Night Harbor", records[0].Title)
	assert.Equal(t, 3, records[0].TotalEpisodes)

	rec := env.do(t, http.MethodDelete, "/api/history/beta/2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/history/beta/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/history/Bad%20Key/2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/history", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFavorites(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/favorites", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/favorites", `{"source":"alpha","id":"1","title":"Night Harbor","year":"2021","totalEpisodes":3}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/favorites", `{"source":"alpha","id":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/favorites", "")
	var favs []media.Favorite
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &favs))
	require.Len(t, favs, 1)
	assert.Equal(t, "Night Harbor", favs[0].Title)
	assert.Equal(t, 3, favs[0].TotalEpisodes)

	rec = env.do(t, http.MethodDelete, "/api/favorites/alpha/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/favorites/alpha/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSkipConfig(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/skip/alpha/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg media.SkipConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.False(t, cfg.Enabled)

	rec = env.do(t, http.MethodPut, "/api/skip/alpha/1", `{"enabled":true,"introSeconds":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/skip/alpha/1", `{"enabled":true,"introSeconds":85,"outroSeconds":60}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/skip/alpha/1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, media.SkipConfig{Source: "alpha", ID: "1", Enabled: true, IntroSeconds: 85, OutroSeconds: 60}, cfg)
}

func TestWebSocketRelaysEvents(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var greeting Message
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, "state", greeting.Type)

	resp, err := http.Post(ts.URL+"/api/resolve", "application/json", strings.NewReader(`{"title":"Night Harbor"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var types []string
	for {
		var msg struct {
			Type    string        `json:"type"`
			Payload resolve.Event `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		if msg.Type == "resolve:committed" {
			require.NotNil(t, msg.Payload.Target)
			assert.Equal(t, "beta", msg.Payload.Target.Source)
			break
		}
	}
	assert.Contains(t, types, "resolve:candidates")
	assert.Contains(t, types, "resolve:probe")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "state:get"}))
	for {
		var state struct {
			Type    string           `json:"type"`
			Payload resolve.Snapshot `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&state))
		if state.Type == "state" {
			assert.Equal(t, resolve.StatusCommitted, state.Payload.Status)
			break
		}
	}
}

func TestWebSocketPeerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var greeting Message
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, 1, env.srv.hub.PeerCount())

	// Malformed frames are ignored; the peer stays connected.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "state:get"}))
	var state Message
	require.NoError(t, conn.ReadJSON(&state))
	assert.Equal(t, "state", state.Type)

	conn.Close()
	require.Eventually(t, func() bool { return env.srv.hub.PeerCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}
