package state

import (
	"fmt"

	"github.com/mkohara/beacon/pkg/logging"
)

// EventCallbacks maps EventState variants to handlers. Any callback may be
// nil.
type EventCallbacks[T any] struct {
	OnIdle      func(runID string)
	OnLoading   func(runID string)
	OnSuccess   func(runID string, data T)
	OnError     func(runID string, message string, err error, stack string)
	OnCompleted func(runID string)
}

// HandleEvent dispatches st to the matching callback. It is a flat
// exhaustive match over all five variants; a callback's panic is caught
// and logged without affecting the caller or sibling callbacks.
func HandleEvent[T any](st EventState[T], cb EventCallbacks[T], opts ...Option) {
	o := buildOptions(opts)
	switch st.Kind {
	case EventIdle:
		if cb.OnIdle != nil {
			safeCall(o, string(st.Kind), func() { cb.OnIdle(st.RunID) })
		}
	case EventLoading:
		if cb.OnLoading != nil {
			safeCall(o, string(st.Kind), func() { cb.OnLoading(st.RunID) })
		}
	case EventSuccess:
		if cb.OnSuccess != nil {
			safeCall(o, string(st.Kind), func() { cb.OnSuccess(st.RunID, st.Data) })
		}
	case EventError:
		if cb.OnError != nil {
			safeCall(o, string(st.Kind), func() { cb.OnError(st.RunID, st.Message, st.Err, st.Stack) })
		}
	case EventCompleted:
		if cb.OnCompleted != nil {
			safeCall(o, string(st.Kind), func() { cb.OnCompleted(st.RunID) })
		}
	}
}

// QueryCallbacks maps QueryState variants to handlers. Any callback may be
// nil.
type QueryCallbacks[T any] struct {
	OnIdle    func()
	OnLoading func()
	OnSuccess func(data T)
	OnEmpty   func()
	OnError   func(message string)
}

// HandleQuery dispatches st to the matching callback with the same
// isolation guarantees as HandleEvent.
func HandleQuery[T any](st QueryState[T], cb QueryCallbacks[T], opts ...Option) {
	o := buildOptions(opts)
	switch st.Kind {
	case QueryIdle:
		if cb.OnIdle != nil {
			safeCall(o, string(st.Kind), func() { cb.OnIdle() })
		}
	case QueryLoading:
		if cb.OnLoading != nil {
			safeCall(o, string(st.Kind), func() { cb.OnLoading() })
		}
	case QuerySuccess:
		if cb.OnSuccess != nil {
			safeCall(o, string(st.Kind), func() { cb.OnSuccess(st.Data) })
		}
	case QueryEmpty:
		if cb.OnEmpty != nil {
			safeCall(o, string(st.Kind), func() { cb.OnEmpty() })
		}
	case QueryError:
		if cb.OnError != nil {
			safeCall(o, string(st.Kind), func() { cb.OnError(st.Message) })
		}
	}
}

// safeCall isolates one callback. kind names the state for the diagnostic.
func safeCall(o Options, kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.alertf(logging.LevelError, fmt.Sprintf("callback for %s state panicked: %v", kind, r))
		}
	}()
	fn()
}
