package state

// QueryKind tags a QueryState variant.
type QueryKind string

const (
	QueryIdle    QueryKind = "idle"
	QueryLoading QueryKind = "loading"
	QuerySuccess QueryKind = "success"
	QueryEmpty   QueryKind = "empty"
	QueryError   QueryKind = "error"
)

// QueryState is the current state of a persisted data view. Unlike
// EventState it carries no run identifier: query state is positional, the
// latest emission simply replaces the previous one. Data is meaningful
// only for QuerySuccess; Message only for QueryError.
type QueryState[T any] struct {
	Kind    QueryKind
	Data    T
	Message string
}

// QueryIdleState returns the nothing-requested state.
func QueryIdleState[T any]() QueryState[T] {
	return QueryState[T]{Kind: QueryIdle}
}

// QueryLoadingState returns the fetch-in-flight state.
func QueryLoadingState[T any]() QueryState[T] {
	return QueryState[T]{Kind: QueryLoading}
}

// QuerySuccessState returns the fetched-with-data state.
func QuerySuccessState[T any](data T) QueryState[T] {
	return QueryState[T]{Kind: QuerySuccess, Data: data}
}

// QueryEmptyState returns the fetched-but-empty state.
func QueryEmptyState[T any]() QueryState[T] {
	return QueryState[T]{Kind: QueryEmpty}
}

// QueryErrorState returns the fetch-failed state.
func QueryErrorState[T any](message string) QueryState[T] {
	return QueryState[T]{Kind: QueryError, Message: message}
}
