package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodpick/internal/media"
)

func probesFor(cands []media.Candidate, results ...media.ProbeResult) map[string]media.ProbeResult {
	out := make(map[string]media.ProbeResult, len(results))
	for i, r := range results {
		out[cands[i].Key()] = r
	}
	return out
}

func TestRankReferenceScore(t *testing.T) {
	cands := []media.Candidate{
		movie("a", "1", "Foo", "2020"),
		movie("b", "2", "Foo", "2020"),
	}
	probes := probesFor(cands,
		media.ProbeResult{Quality: media.Quality1080p, SpeedKBps: 2048, PingMs: 50},
		media.ProbeResult{Quality: media.Quality720p, SpeedKBps: 1024, PingMs: 200},
	)

	ranked, ok := Rank(cands, probes)
	require.True(t, ok)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Candidate.Source)
	assert.Equal(t, 90.0, ranked[0].Score)
	// 60*0.4 + 50*0.4 + 0*0.2
	assert.Equal(t, 44.0, ranked[1].Score)
}

func TestRankSpeedOutweighsPing(t *testing.T) {
	cands := []media.Candidate{
		movie("a", "1", "Foo", "2020"),
		movie("b", "2", "Foo", "2020"),
		movie("c", "3", "Foo", "2020"),
	}
	probes := probesFor(cands,
		media.ProbeResult{Quality: media.Quality720p, SpeedKBps: 512, PingMs: 50},
		media.ProbeResult{Quality: media.Quality1080p, SpeedKBps: 1024, PingMs: 100},
		media.ProbeResult{Quality: media.Quality1080p, SpeedKBps: 2048, PingMs: 150},
	)

	ranked, ok := Rank(cands, probes)
	require.True(t, ok)
	assert.Equal(t, "c", ranked[0].Candidate.Source)
	assert.Equal(t, 70.0, ranked[0].Score)
	assert.Equal(t, 60.0, ranked[1].Score)
	assert.Equal(t, 54.0, ranked[2].Score)
}

func TestRankIsDeterministic(t *testing.T) {
	cands := []media.Candidate{
		movie("a", "1", "Foo", "2020"),
		movie("b", "2", "Foo", "2020"),
		movie("c", "3", "Foo", "2020"),
	}
	same := media.ProbeResult{Quality: media.Quality1080p, SpeedKBps: 900, PingMs: 80}
	probes := probesFor(cands, same, same, same)

	for range 20 {
		ranked, ok := Rank(cands, probes)
		require.True(t, ok)
		// Ties keep discovery order.
		assert.Equal(t, []string{"a", "b", "c"}, []string{
			ranked[0].Candidate.Source, ranked[1].Candidate.Source, ranked[2].Candidate.Source,
		})
	}
}

func TestRankFailedProbesLast(t *testing.T) {
	cands := []media.Candidate{
		movie("a", "1", "Foo", "2020"),
		movie("b", "2", "Foo", "2020"),
		movie("c", "3", "Foo", "2020"),
	}
	probes := probesFor(cands,
		media.ProbeResult{Quality: media.QualityUnknown, Failed: true},
		media.ProbeResult{Quality: media.Quality480p, SpeedKBps: 100, PingMs: 30},
	)

	ranked, ok := Rank(cands, probes)
	require.True(t, ok)
	require.Len(t, ranked, 2, "unprobed candidates are not ranked")
	assert.Equal(t, "b", ranked[0].Candidate.Source)
	assert.Equal(t, "a", ranked[1].Candidate.Source)
	assert.Zero(t, ranked[1].Score)
}

func TestRankNothingSucceeded(t *testing.T) {
	cands := []media.Candidate{movie("a", "1", "Foo", "2020")}
	probes := probesFor(cands, media.ProbeResult{Failed: true})

	ranked, ok := Rank(cands, probes)
	assert.False(t, ok)
	assert.Len(t, ranked, 1)

	ranked, ok = Rank(cands, nil)
	assert.False(t, ok)
	assert.Empty(t, ranked)
}

func TestRankPingEdges(t *testing.T) {
	tests := []struct {
		name  string
		pings []float64
		want  []float64 // ping term of each candidate after weighting
	}{
		{"single ping scores full", []float64{120}, []float64{20}},
		{"equal pings score full", []float64{80, 80}, []float64{20, 20}},
		{"missing ping scores zero", []float64{0, 100}, []float64{0, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cands []media.Candidate
			probes := make(map[string]media.ProbeResult)
			for i, p := range tt.pings {
				c := movie(string(rune('a'+i)), "1", "Foo", "2020")
				cands = append(cands, c)
				// Unknown quality and zero speed leave only the ping term.
				probes[c.Key()] = media.ProbeResult{Quality: media.QualityUnknown, PingMs: p}
			}

			ranked, ok := Rank(cands, probes)
			require.True(t, ok)
			scores := make(map[string]float64)
			for _, sc := range ranked {
				scores[sc.Candidate.Source] = sc.Score
			}
			for i, want := range tt.want {
				assert.Equal(t, want, scores[cands[i].Source])
			}
		})
	}
}

func TestRankSpeedFallback(t *testing.T) {
	cands := []media.Candidate{movie("a", "1", "Foo", "2020")}
	probes := probesFor(cands, media.ProbeResult{Quality: media.Quality4K})

	ranked, ok := Rank(cands, probes)
	require.True(t, ok)
	// 100*0.4 + 0 speed + 0 ping
	assert.Equal(t, 40.0, ranked[0].Score)
}
