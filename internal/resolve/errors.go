package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted marks work dropped because its session was superseded.
	// It is never shown to the user.
	ErrAborted = errors.New("aborted")

	// ErrProbeFailed wraps a per-candidate probe failure.
	ErrProbeFailed = errors.New("probe failed")

	// ErrMissingParameters rejects a request with no title, search title or hint.
	ErrMissingParameters = errors.New("missing parameters: need a title or an explicit source")

	// ErrNoTarget is returned by target operations before anything was committed.
	ErrNoTarget = errors.New("nothing is playing")

	// ErrClosed is returned after the orchestrator was closed.
	ErrClosed = errors.New("orchestrator closed")
)

// FailureKind classifies a terminal session failure.
type FailureKind string

const (
	FailureNotFound  FailureKind = "NotFound"
	FailureDiscovery FailureKind = "DiscoveryError"
)

// Failure is the reason a session ended in StatusFailed.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
	Err    error       `json:"-"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
