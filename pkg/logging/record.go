package logging

import "time"

// Record is one log entry. Records are immutable once constructed; the
// router fills Time and Location at construction.
type Record struct {
	Time     time.Time
	Level    Level
	Message  string
	Tag      string
	Err      error
	Stack    string
	Location string
}

// RecordOption attaches optional fields to a record at the log call site.
type RecordOption func(*Record)

// WithTag sets the record's tag, used by the include/exclude tag filters.
func WithTag(tag string) RecordOption {
	return func(r *Record) { r.Tag = tag }
}

// WithError attaches the underlying error.
func WithError(err error) RecordOption {
	return func(r *Record) { r.Err = err }
}

// WithStack attaches a captured stack trace.
func WithStack(stack string) RecordOption {
	return func(r *Record) { r.Stack = stack }
}
