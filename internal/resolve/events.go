package resolve

import (
	"time"

	"vodpick/internal/media"
)

// Status is the lifecycle state of a resolution session.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusDiscovering Status = "discovering"
	StatusProbing     Status = "probing"
	StatusCommitted   Status = "committed"
	StatusFailed      Status = "failed"
	StatusSuperseded  Status = "superseded"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusFailed || s == StatusSuperseded
}

// EventType names what an Event reports.
type EventType string

const (
	EventStatus     EventType = "status"     // session changed state
	EventCandidates EventType = "candidates" // discovery finished
	EventProbe      EventType = "probe"      // one candidate settled
	EventCommitted  EventType = "committed"  // target published by a session
	EventTarget     EventType = "target"     // target changed by a user action
	EventFailed     EventType = "failed"
)

// Event is published to orchestrator subscribers.
type Event struct {
	Type       EventType             `json:"type"`
	SessionID  string                `json:"sessionId"`
	Generation uint64                `json:"generation"`
	Status     Status                `json:"status"`
	Ref        *media.SourceRef      `json:"ref,omitempty"`
	Probe      *media.ProbeResult    `json:"probe,omitempty"`
	Tested     int                   `json:"tested"`
	Total      int                   `json:"total"`
	Target     *media.PlaybackTarget `json:"target,omitempty"`
	Failure    *Failure              `json:"failure,omitempty"`
	Candidates []media.Candidate     `json:"candidates,omitempty"`
	Time       time.Time             `json:"time"`
}
