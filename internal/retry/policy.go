// Package retry decides whether a failed stage attempt gets another try and
// how long to wait before it. The executor never retries on its own; the
// controller consults the policy between passes.
package retry

import (
	"time"

	"github.com/vidrelay/vidrelay/internal/model"
	"github.com/vidrelay/vidrelay/internal/stage"
)

// Decision is the policy's answer for one (video, step) pair.
type Decision struct {
	// GiveUp moves the video to permanently_failed with no further attempts.
	GiveUp bool
	// Delay is the minimum wait before the next attempt when not giving up.
	Delay time.Duration
}

// Policy bounds attempts per (video, step) and spaces retries out.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default returns the standard policy: 3 attempts, 30s base delay, 10m cap.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   30 * time.Second,
		MaxDelay:    10 * time.Minute,
	}
}

// Decide returns the retry decision after an attempt concluded with outcome.
// attempts is the closed attempt history for the pair, the attempt that just
// ended included.
func (p Policy) Decide(outcome stage.Outcome, attempts []model.Attempt) Decision {
	if outcome == stage.FatalFailure {
		return Decision{GiveUp: true}
	}
	if len(attempts) >= p.MaxAttempts {
		return Decision{GiveUp: true}
	}
	return Decision{Delay: p.backoff(len(attempts))}
}

// EligibleAt returns the earliest time the next attempt may start. With no
// prior attempts the pair is immediately eligible.
func (p Policy) EligibleAt(attempts []model.Attempt) time.Time {
	if len(attempts) == 0 {
		return time.Time{}
	}
	last := attempts[len(attempts)-1]
	ended, ok := last.EndedAtTime()
	if !ok {
		return time.Time{}
	}
	return ended.Add(p.backoff(len(attempts)))
}

// backoff doubles the base delay per prior failure, capped at MaxDelay when
// one is set.
func (p Policy) backoff(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < failures; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
