package state

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkohara/beacon/pkg/logging"
)

func collectEvents[T any](states *[]EventState[T]) EventSink[T] {
	return func(st EventState[T]) { *states = append(*states, st) }
}

func eventKinds[T any](states []EventState[T]) []EventKind {
	kinds := make([]EventKind, len(states))
	for i, st := range states {
		kinds[i] = st.Kind
	}
	return kinds
}

func TestTriggerEventSuccess(t *testing.T) {
	var states []EventState[string]
	TriggerEvent(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	}, collectEvents(&states))

	require.Equal(t, []EventKind{EventLoading, EventSuccess, EventCompleted}, eventKinds(states))
	assert.Equal(t, "ok", states[1].Data)

	id := states[0].RunID
	require.NotEmpty(t, id)
	for _, st := range states {
		assert.Equal(t, id, st.RunID)
	}
}

func TestTriggerEventFailure(t *testing.T) {
	boom := errors.New("boom")

	var states []EventState[int]
	TriggerEvent(context.Background(), func(ctx context.Context) (int, error) {
		return 0, boom
	}, collectEvents(&states))

	require.Equal(t, []EventKind{EventLoading, EventError, EventCompleted}, eventKinds(states))
	assert.Equal(t, "boom", states[1].Message)
	assert.Equal(t, boom, states[1].Err)
	assert.Empty(t, states[1].Stack)

	id := states[0].RunID
	for _, st := range states {
		assert.Equal(t, id, st.RunID)
	}
}

func TestTriggerEventProducerPanic(t *testing.T) {
	var states []EventState[string]
	require.NotPanics(t, func() {
		TriggerEvent(context.Background(), func(ctx context.Context) (string, error) {
			panic("kaboom")
		}, collectEvents(&states))
	})

	require.Equal(t, []EventKind{EventLoading, EventError, EventCompleted}, eventKinds(states))
	assert.Contains(t, states[1].Message, "kaboom")
	assert.NotEmpty(t, states[1].Stack, "panic should carry a stack trace")
}

func TestTriggerEventSinkPanicStillCompletes(t *testing.T) {
	var states []EventState[string]
	sink := func(st EventState[string]) {
		states = append(states, st)
		if st.Kind == EventSuccess {
			panic("sink failure")
		}
	}

	require.NotPanics(t, func() {
		TriggerEvent(context.Background(), func(ctx context.Context) (string, error) {
			return "ok", nil
		}, sink)
	})

	assert.Equal(t, []EventKind{EventLoading, EventSuccess, EventCompleted}, eventKinds(states))
}

func TestTriggerEventConcurrent(t *testing.T) {
	const invocations = 8

	var mu sync.Mutex
	var states []EventState[int]
	sink := func(st EventState[int]) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < invocations; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			TriggerEvent(context.Background(), func(ctx context.Context) (int, error) {
				return n, nil
			}, sink)
		}(i)
	}
	wg.Wait()

	// Interleaving across invocations is unspecified, but each run's own
	// sequence must be intact.
	perRun := make(map[string][]EventKind)
	for _, st := range states {
		perRun[st.RunID] = append(perRun[st.RunID], st.Kind)
	}
	require.Len(t, perRun, invocations)
	for id, kinds := range perRun {
		assert.Equal(t, []EventKind{EventLoading, EventSuccess, EventCompleted}, kinds, "run %s", id)
	}
}

func TestTriggerEventVerboseLogging(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.DefaultConfig()
	cfg.UseColor = false
	router := logging.New(cfg, logging.WithConsole(&buf))

	var states []EventState[string]
	TriggerEvent(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	}, collectEvents(&states), WithVerbose(true), WithLogger(router), WithTag("Engine"))

	out := buf.String()
	assert.Contains(t, out, "loading")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "#Engine")
}

func TestTriggerQuery(t *testing.T) {
	queryKinds := func(states []QueryState[[]string]) []QueryKind {
		kinds := make([]QueryKind, len(states))
		for i, st := range states {
			kinds[i] = st.Kind
		}
		return kinds
	}
	isEmpty := func(v []string) bool { return len(v) == 0 }

	cases := []struct {
		name     string
		producer Producer[[]string]
		isEmpty  func([]string) bool
		want     []QueryKind
	}{
		{
			name:     "success with data",
			producer: func(ctx context.Context) ([]string, error) { return []string{"a"}, nil },
			isEmpty:  isEmpty,
			want:     []QueryKind{QueryLoading, QuerySuccess},
		},
		{
			name:     "empty result",
			producer: func(ctx context.Context) ([]string, error) { return nil, nil },
			isEmpty:  isEmpty,
			want:     []QueryKind{QueryLoading, QueryEmpty},
		},
		{
			name:     "no emptiness predicate",
			producer: func(ctx context.Context) ([]string, error) { return nil, nil },
			isEmpty:  nil,
			want:     []QueryKind{QueryLoading, QuerySuccess},
		},
		{
			name:     "producer failure",
			producer: func(ctx context.Context) ([]string, error) { return nil, errors.New("down") },
			isEmpty:  isEmpty,
			want:     []QueryKind{QueryLoading, QueryError},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var states []QueryState[[]string]
			TriggerQuery(context.Background(), c.producer, func(st QueryState[[]string]) {
				states = append(states, st)
			}, c.isEmpty)

			require.Equal(t, c.want, queryKinds(states))
			last := states[len(states)-1]
			switch last.Kind {
			case QuerySuccess:
				assert.Empty(t, last.Message)
			case QueryError:
				assert.Equal(t, "down", last.Message)
			}
		})
	}
}

func TestTriggerQuerySinkPanicAbsorbed(t *testing.T) {
	require.NotPanics(t, func() {
		TriggerQuery(context.Background(), func(ctx context.Context) (string, error) {
			return "ok", nil
		}, func(st QueryState[string]) {
			panic("bad sink")
		}, nil)
	})
}

func TestRenderResult(t *testing.T) {
	assert.Equal(t, `{"Name":"x"}`, renderResult(struct{ Name string }{Name: "x"}))
	// Channels cannot be marshalled; the plain rendering is used instead.
	out := renderResult(make(chan int))
	assert.True(t, strings.HasPrefix(out, "0x") || out != "", "fallback rendering should be non-empty")
}
