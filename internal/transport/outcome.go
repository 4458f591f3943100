// Package transport delivers responses from processes under test to callbacks.
//
// A remote call ends in exactly one Outcome, which a Handler routes to either
// its success or its failure function.
package transport

import (
	"errors"
	"fmt"
	"io"

	"stagectl/pkg/logging"
)

const subsystem = "Transport"

// ExecutorGeneric names the shared worker pool responses are handled on.
const ExecutorGeneric = "generic"

// Outcome is the result of one remote call: a response or an error, never both.
type Outcome[T any] struct {
	Response T
	Err      error
}

// Success wraps a decoded response.
func Success[T any](response T) Outcome[T] {
	return Outcome[T]{Response: response}
}

// Failure wraps a transport or decoding error.
func Failure[T any](err error) Outcome[T] {
	return Outcome[T]{Err: err}
}

// Failed reports whether the outcome carries an error.
func (o Outcome[T]) Failed() bool {
	return o.Err != nil
}

// Handler receives the outcome of a remote call.
//
// OnSuccess and OnFailure must not block. A panic in either is recovered and
// logged so it cannot take down the worker delivering the response.
type Handler[T any] struct {
	// Executor names the pool the handler runs on. Empty means ExecutorGeneric.
	Executor  string
	OnSuccess func(T)
	OnFailure func(error)
	// Read decodes exactly one response from the stream.
	Read func(io.Reader) (T, error)
}

// ResponseSink is the type-erased view of a Handler used by the Client.
type ResponseSink interface {
	ExecutorName() string
	Handle(body io.Reader, err error)
}

// ExecutorName returns the pool the handler runs on.
func (h Handler[T]) ExecutorName() string {
	if h.Executor == "" {
		return ExecutorGeneric
	}
	return h.Executor
}

// Dispatch routes o to OnSuccess or OnFailure.
func (h Handler[T]) Dispatch(o Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(subsystem, fmt.Errorf("%v", r), "Response handler panicked")
		}
	}()

	if o.Failed() {
		if h.OnFailure != nil {
			h.OnFailure(o.Err)
		}
		return
	}
	if h.OnSuccess != nil {
		h.OnSuccess(o.Response)
	}
}

// Handle decodes body with Read and dispatches the result. A non-nil err is
// dispatched as a failure without touching body.
func (h Handler[T]) Handle(body io.Reader, err error) {
	if err != nil {
		h.Dispatch(Failure[T](err))
		return
	}
	if h.Read == nil {
		h.Dispatch(Failure[T](errors.New("handler has no response reader")))
		return
	}

	response, err := h.Read(body)
	if err != nil {
		h.Dispatch(Failure[T](fmt.Errorf("failed to decode response: %w", err)))
		return
	}
	h.Dispatch(Success(response))
}
