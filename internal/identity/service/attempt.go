package service

import (
	"time"

	"authcore/internal/identity/domain"
)

// AttemptState is the lifecycle of one authentication attempt.
type AttemptState int

const (
	AttemptPending AttemptState = iota
	AttemptResolved
	AttemptRejected
)

func (s AttemptState) String() string {
	switch s {
	case AttemptPending:
		return "pending"
	case AttemptResolved:
		return "resolved"
	case AttemptRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// attempt tracks one call to Authenticate. It leaves Pending exactly once.
type attempt struct {
	state    AttemptState
	provider domain.ProviderName
	started  time.Time
	identity domain.Identity
	err      error
}

func newAttempt(now time.Time) *attempt {
	return &attempt{state: AttemptPending, started: now}
}

// resolve moves a pending attempt to Resolved. It reports false if the attempt already finished.
func (a *attempt) resolve(id domain.Identity) bool {
	if a.state != AttemptPending {
		return false
	}
	a.state = AttemptResolved
	a.identity = id
	return true
}

// reject moves a pending attempt to Rejected and returns err. A finished attempt keeps its outcome.
func (a *attempt) reject(err error) error {
	if a.state == AttemptPending {
		a.state = AttemptRejected
		a.err = err
	}
	return err
}

func (a *attempt) reason() domain.Reason {
	if a.state != AttemptRejected {
		return domain.ReasonNone
	}
	return domain.ReasonOf(a.err)
}
