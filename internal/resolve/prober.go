package resolve

import (
	"context"
	"fmt"

	"vodpick/internal/media"
)

// SegmentProber measures one stream url. It must honour ctx cancellation.
type SegmentProber interface {
	Probe(ctx context.Context, url string) (media.ProbeResult, error)
}

// OutcomeKind is how a candidate probe settled. The zero value is
// OutcomeAborted so unstarted limiter slots read as aborted.
type OutcomeKind int

const (
	OutcomeAborted OutcomeKind = iota
	OutcomeOK
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeFailed:
		return "failed"
	default:
		return "aborted"
	}
}

// ProbeOutcome is the result of probing one candidate.
type ProbeOutcome struct {
	Kind   OutcomeKind
	Result media.ProbeResult
	Err    error
}

// CandidateProber picks a representative stream for a candidate and
// normalizes segment prober errors into outcomes.
type CandidateProber struct {
	segments SegmentProber
}

// NewCandidateProber wraps a segment prober.
func NewCandidateProber(segments SegmentProber) *CandidateProber {
	return &CandidateProber{segments: segments}
}

// Probe never returns an error; failures and cancellation are encoded in
// the outcome kind.
func (p *CandidateProber) Probe(ctx context.Context, c media.Candidate) ProbeOutcome {
	if len(c.Episodes) == 0 {
		return failedOutcome(fmt.Errorf("%w: %s has no playable episodes", ErrProbeFailed, c.Ref()))
	}
	if ctx.Err() != nil {
		return ProbeOutcome{Kind: OutcomeAborted, Err: ErrAborted}
	}

	// The first episode is often a teaser or trailer.
	url := c.Episodes[0]
	if len(c.Episodes) > 1 {
		url = c.Episodes[1]
	}

	res, err := p.segments.Probe(ctx, url)
	if ctx.Err() != nil {
		return ProbeOutcome{Kind: OutcomeAborted, Err: ErrAborted}
	}
	if err != nil {
		return failedOutcome(fmt.Errorf("%w: %s: %w", ErrProbeFailed, c.Ref(), err))
	}

	res.Failed = false
	if res.Quality == "" {
		res.Quality = media.QualityUnknown
	}
	return ProbeOutcome{Kind: OutcomeOK, Result: res}
}

func failedOutcome(err error) ProbeOutcome {
	return ProbeOutcome{
		Kind:   OutcomeFailed,
		Result: media.ProbeResult{Quality: media.QualityUnknown, Failed: true},
		Err:    err,
	}
}
