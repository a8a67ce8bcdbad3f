package state

import "github.com/mkohara/beacon/pkg/logging"

// Options controls the optional diagnostics around an engine invocation.
// The zero value is silent.
type Options struct {
	tag     string
	logger  *logging.Router
	verbose bool
}

// Option customizes one TriggerEvent, TriggerQuery, or HandleEvent call.
type Option func(*Options)

// WithTag labels the invocation's log lines with tag.
func WithTag(tag string) Option {
	return func(o *Options) { o.tag = tag }
}

// WithLogger routes the invocation's diagnostics through r instead of the
// process-wide default router.
func WithLogger(r *logging.Router) Option {
	return func(o *Options) { o.logger = r }
}

// WithVerbose enables per-transition logging for the invocation.
func WithVerbose(verbose bool) Option {
	return func(o *Options) { o.verbose = verbose }
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// logf writes one verbose diagnostic line.
func (o Options) logf(level logging.Level, msg string, recOpts ...logging.RecordOption) {
	if !o.verbose {
		return
	}
	o.alertf(level, msg, recOpts...)
}

// alertf writes one diagnostic line regardless of the verbose flag; caught
// panics are reported through it. Logging failures never abort the state
// sequence.
func (o Options) alertf(level logging.Level, msg string, recOpts ...logging.RecordOption) {
	defer func() { _ = recover() }()
	r := o.logger
	if r == nil {
		r = logging.Default()
	}
	if o.tag != "" {
		recOpts = append(recOpts, logging.WithTag(o.tag))
	}
	r.Log(level, msg, recOpts...)
}
