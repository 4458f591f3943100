package orchestrator

import (
	"errors"

	"stagectl/internal/launcher"
)

var (
	// ErrNoStages is returned for a run with nothing to launch.
	ErrNoStages = errors.New("no stages to run")
	// ErrReadinessTimeout means a stage's latch was not released in time, or
	// its readiness probe never succeeded.
	ErrReadinessTimeout = errors.New("stage did not become ready in time")
	// ErrStartFailed means a stage's process could not be spawned.
	ErrStartFailed = launcher.ErrStartFailed
	// ErrVerificationFailed means a verification command did not meet its expectation.
	ErrVerificationFailed = errors.New("verification failed")
)
