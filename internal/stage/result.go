package stage

import "github.com/vidrelay/vidrelay/internal/model"

// Outcome classifies how one stage attempt ended.
type Outcome int

const (
	// Success advances the video to the stage's completed state.
	Success Outcome = iota
	// RecoverableFailure leaves the video in place for a later pass.
	RecoverableFailure
	// FatalFailure ends the video's pipeline with no further attempts.
	FatalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RecoverableFailure:
		return "recoverable_failure"
	case FatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// Result is the executor's verdict on one attempt.
type Result struct {
	Outcome Outcome
	// Artifact is the stage's product reference: a media path, a subtitle
	// path, a content file path or a publish confirmation id.
	Artifact string
	// Reason carries the failure detail, collaborator output unchanged.
	Reason string
	// TimedOut is set when the attempt hit the per-stage deadline.
	TimedOut bool
}

// AttemptOutcome maps the result to the persisted attempt outcome value.
func (r Result) AttemptOutcome() string {
	switch {
	case r.Outcome == Success:
		return model.OutcomeSuccess
	case r.TimedOut:
		return model.OutcomeTimeout
	default:
		return model.OutcomeFailure
	}
}
