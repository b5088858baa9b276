package resolve

import (
	"math"
	"sort"

	"vodpick/internal/media"
)

// fallbackMaxSpeed is used when no probe produced a usable speed.
const fallbackMaxSpeed = 1024.0

var qualityScores = map[media.Quality]float64{
	media.Quality4K:      100,
	media.Quality2K:      85,
	media.Quality1080p:   75,
	media.Quality720p:    60,
	media.Quality480p:    40,
	media.QualitySD:      20,
	media.QualityUnknown: 0,
}

// ScoredCandidate is a candidate with its probe and combined score.
type ScoredCandidate struct {
	Candidate media.Candidate   `json:"candidate"`
	Probe     media.ProbeResult `json:"probe"`
	Score     float64           `json:"score"`
}

// Rank scores every candidate that has a probe result. Successful probes are
// ranked by descending score with discovery order breaking ties; failed
// probes follow with score 0. ok is false when nothing probed successfully.
func Rank(candidates []media.Candidate, probes map[string]media.ProbeResult) (ranked []ScoredCandidate, ok bool) {
	var good, bad []ScoredCandidate
	for _, c := range candidates {
		p, found := probes[c.Key()]
		if !found {
			continue
		}
		sc := ScoredCandidate{Candidate: c, Probe: p}
		if p.Failed {
			bad = append(bad, sc)
		} else {
			good = append(good, sc)
		}
	}

	maxSpeed := 0.0
	minPing, maxPing := math.Inf(1), math.Inf(-1)
	for _, sc := range good {
		maxSpeed = math.Max(maxSpeed, sc.Probe.SpeedKBps)
		if sc.Probe.PingMs > 0 {
			minPing = math.Min(minPing, sc.Probe.PingMs)
			maxPing = math.Max(maxPing, sc.Probe.PingMs)
		}
	}
	if maxSpeed <= 0 {
		maxSpeed = fallbackMaxSpeed
	}

	for i := range good {
		p := good[i].Probe
		quality := qualityScores[p.Quality]
		speed := clamp(p.SpeedKBps / maxSpeed * 100)

		var ping float64
		switch {
		case p.PingMs <= 0:
			ping = 0
		case maxPing == minPing:
			ping = 100
		default:
			ping = clamp((maxPing - p.PingMs) / (maxPing - minPing) * 100)
		}

		good[i].Score = round2(quality*0.4 + speed*0.4 + ping*0.2)
	}

	sort.SliceStable(good, func(i, j int) bool {
		return good[i].Score > good[j].Score
	})

	return append(good, bad...), len(good) > 0
}

func clamp(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
