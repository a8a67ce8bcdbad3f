// Package state tracks the lifecycle of asynchronous operations as closed
// tagged unions. TriggerEvent and TriggerQuery wrap an arbitrary producer
// and emit a deterministic state sequence to a caller-supplied sink;
// HandleEvent demultiplexes a state to per-variant callbacks. Producer
// failures, sink panics, and callback panics are all absorbed so nothing
// escapes the package boundary.
package state

// EventKind tags an EventState variant.
type EventKind string

const (
	EventIdle      EventKind = "idle"
	EventLoading   EventKind = "loading"
	EventSuccess   EventKind = "success"
	EventError     EventKind = "error"
	EventCompleted EventKind = "completed"
)

// EventState is one lifecycle state of a single asynchronous invocation.
// Every state emitted for an invocation carries the same RunID. Data is
// meaningful only for EventSuccess; Err and Stack only for EventError.
// Completed carries no payload and marks the end of the sequence.
type EventState[T any] struct {
	Kind    EventKind
	RunID   string
	Data    T
	Message string
	Err     error
	Stack   string
}

// Idle returns the no-invocation-started state. runID may be empty.
func Idle[T any](runID string) EventState[T] {
	return EventState[T]{Kind: EventIdle, RunID: runID}
}

// Loading returns the in-flight state for runID.
func Loading[T any](runID string) EventState[T] {
	return EventState[T]{Kind: EventLoading, RunID: runID}
}

// Success returns the completed-with-value state for runID.
func Success[T any](runID string, data T) EventState[T] {
	return EventState[T]{Kind: EventSuccess, RunID: runID, Data: data}
}

// Failure returns the failed state for runID. stack may be empty when the
// producer returned an error rather than panicking.
func Failure[T any](runID string, err error, stack string) EventState[T] {
	st := EventState[T]{Kind: EventError, RunID: runID, Err: err, Stack: stack}
	if err != nil {
		st.Message = err.Error()
	}
	return st
}

// Completed returns the terminal marker for runID.
func Completed[T any](runID string) EventState[T] {
	return EventState[T]{Kind: EventCompleted, RunID: runID}
}
