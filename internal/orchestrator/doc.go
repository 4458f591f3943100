// Package orchestrator runs a plan: it launches each stage's process in order,
// waits for it to become ready, checks it, and tears everything down at the
// end no matter how the run went.
//
// # Stage lifecycle
//
// For every stage the orchestrator creates a fresh latch, submits a launcher
// task to the worker pool and waits on the latch for up to the stage's
// readiness timeout. Once the latch is released and the task did not fail to
// start, the optional readiness probe is polled, the settle delay is observed,
// verification commands run through the command executor and remote requests
// are sent through the transport client.
//
// A stage that times out, fails to start or fails a verification expectation
// aborts the run. Later stages are reported as SKIPPED.
//
// # Teardown
//
// Every task that was submitted receives exactly one stop request, in reverse
// start order, before the pool is shut down. This also happens when the run
// context is cancelled.
package orchestrator
