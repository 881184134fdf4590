package model

import "time"

// Attempt outcome constants. An empty outcome means the attempt is still in
// flight (or was abandoned by a crashed run and not yet closed).
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Attempt records one executor invocation for a (video, step) pair.
// Attempt numbers are contiguous starting at 1; a new attempt is opened only
// after the prior one for the same pair holds a final outcome.
type Attempt struct {
	ID            string `json:"id"`
	VideoID       string `json:"video_id"`
	Step          string `json:"step"`
	AttemptNumber int    `json:"attempt_number"`
	StartedAt     string `json:"started_at"`
	EndedAt       string `json:"ended_at,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	ErrorDetail   string `json:"error_detail,omitempty"`
}

// Closed reports whether the attempt holds a final outcome.
func (a Attempt) Closed() bool {
	return a.Outcome != ""
}

// StartedAtTime parses StartedAt; ok is false when the timestamp is malformed.
func (a Attempt) StartedAtTime() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, a.StartedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// EndedAtTime parses EndedAt; ok is false while the attempt is open or the
// timestamp is malformed.
func (a Attempt) EndedAtTime() (time.Time, bool) {
	if a.EndedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, a.EndedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
