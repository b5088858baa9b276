package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodpick/internal/media"
)

func TestCandidateProberOutcomes(t *testing.T) {
	single := movie("a", "1", "Foo", "2020")
	multi := series("b", "2", "Foo", 3)
	missing := movie("c", "3", "Foo", "2020")
	noEpisodes := media.Candidate{Source: "d", ID: "4", Title: "Foo"}

	segments := newFakeSegments().
		set(probeURL(single), media.Quality720p, 800, 40).
		set(probeURL(multi), "", 500, 60)
	prober := NewCandidateProber(segments)

	t.Run("ok", func(t *testing.T) {
		out := prober.Probe(context.Background(), single)
		assert.Equal(t, OutcomeOK, out.Kind)
		assert.Equal(t, media.Quality720p, out.Result.Quality)
		assert.False(t, out.Result.Failed)
	})

	t.Run("second episode probed and empty quality normalized", func(t *testing.T) {
		out := prober.Probe(context.Background(), multi)
		require.Equal(t, OutcomeOK, out.Kind)
		assert.Equal(t, media.QualityUnknown, out.Result.Quality)
		assert.Contains(t, segments.urls, multi.Episodes[1])
	})

	t.Run("failure", func(t *testing.T) {
		out := prober.Probe(context.Background(), missing)
		assert.Equal(t, OutcomeFailed, out.Kind)
		assert.True(t, out.Result.Failed)
		assert.ErrorIs(t, out.Err, ErrProbeFailed)
	})

	t.Run("no episodes fails without network", func(t *testing.T) {
		before := segments.calls.Load()
		out := prober.Probe(context.Background(), noEpisodes)
		assert.Equal(t, OutcomeFailed, out.Kind)
		assert.Equal(t, before, segments.calls.Load())
	})

	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		before := segments.calls.Load()
		out := prober.Probe(ctx, single)
		assert.Equal(t, OutcomeAborted, out.Kind)
		assert.ErrorIs(t, out.Err, ErrAborted)
		assert.Equal(t, before, segments.calls.Load())
	})
}

func TestCandidateProberAbortMidFlight(t *testing.T) {
	c := movie("a", "1", "Foo", "2020")
	segments := newFakeSegments()
	segments.block[probeURL(c)] = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan ProbeOutcome)
	go func() { done <- NewCandidateProber(segments).Probe(ctx, c) }()

	assert.Eventually(t, func() bool { return segments.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	out := <-done
	assert.Equal(t, OutcomeAborted, out.Kind)
	assert.Equal(t, "aborted", out.Kind.String())
}
