package state

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/mkohara/beacon/pkg/logging"
	"github.com/mkohara/beacon/pkg/runid"
)

// Producer computes the value an invocation is tracking. Returning an
// error or panicking are both treated as failure.
type Producer[T any] func(ctx context.Context) (T, error)

// EventSink receives the lifecycle states of one invocation.
type EventSink[T any] func(EventState[T])

// QuerySink receives the current state of a data view.
type QuerySink[T any] func(QueryState[T])

// TriggerEvent runs producer and emits exactly the sequence
// Loading, Success or Error, Completed to sink, all carrying one freshly
// generated run identifier. The producer's errors and panics are converted
// into the Error state; sink panics are caught and logged and never
// suppress the terminal Completed emission. TriggerEvent always returns
// normally.
//
// Concurrent calls are independent: each owns its run identifier and
// shares no state with the others, so a sink may be reused across calls.
func TriggerEvent[T any](ctx context.Context, producer Producer[T], sink EventSink[T], opts ...Option) {
	o := buildOptions(opts)
	id := runid.New()

	o.logf(logging.LevelDebug, "event "+id+": loading")
	emit(sink, Loading[T](id), o)

	data, stack, err := runProducer(ctx, producer)
	if err != nil {
		o.logf(logging.LevelError, "event "+id+": failed", logging.WithError(err))
		emit(sink, Failure[T](id, err, stack), o)
	} else {
		o.logf(logging.LevelSuccess, "event "+id+": succeeded")
		emit(sink, Success(id, data), o)
	}

	o.logf(logging.LevelDebug, "event "+id+": completed")
	emit(sink, Completed[T](id), o)
}

// TriggerQuery runs producer and emits Loading followed by exactly one of
// Success, Empty, or Error to sink. isEmpty, when non-nil, classifies a
// successful result as Empty. There is no run identifier and no terminal
// marker: the last emission is meant to persist as the view's current
// state. TriggerQuery always returns normally.
func TriggerQuery[T any](ctx context.Context, producer Producer[T], sink QuerySink[T], isEmpty func(T) bool, opts ...Option) {
	o := buildOptions(opts)

	o.logf(logging.LevelDebug, "query: loading")
	emitQuery(sink, QueryLoadingState[T](), o)

	data, _, err := runProducer(ctx, producer)
	if err != nil {
		o.logf(logging.LevelError, "query: failed", logging.WithError(err))
		emitQuery(sink, QueryErrorState[T](err.Error()), o)
		return
	}
	if isEmpty != nil && isEmpty(data) {
		o.logf(logging.LevelDebug, "query: empty")
		emitQuery(sink, QueryEmptyState[T](), o)
		return
	}
	o.logf(logging.LevelSuccess, "query: succeeded with "+renderResult(data))
	emitQuery(sink, QuerySuccessState(data), o)
}

// runProducer invokes p, converting a panic into an error carrying the
// panic's stack trace.
func runProducer[T any](ctx context.Context, p Producer[T]) (out T, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = string(debug.Stack())
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	out, err = p(ctx)
	return out, stack, err
}

// emit delivers one state, catching and logging a panicking sink.
func emit[T any](sink EventSink[T], st EventState[T], o Options) {
	defer func() {
		if r := recover(); r != nil {
			o.alertf(logging.LevelError, fmt.Sprintf("event sink panicked on %s state: %v", st.Kind, r))
		}
	}()
	sink(st)
}

func emitQuery[T any](sink QuerySink[T], st QueryState[T], o Options) {
	defer func() {
		if r := recover(); r != nil {
			o.alertf(logging.LevelError, fmt.Sprintf("query sink panicked on %s state: %v", st.Kind, r))
		}
	}()
	sink(st)
}

// renderResult pretty-prints a query result for verbose logging, falling
// back to the plain fmt rendering for values JSON cannot represent.
func renderResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
