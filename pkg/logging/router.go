// Package logging provides a leveled, tag-filtered log router that fans
// records out to a console sink, a rotating file sink, a local SQLite
// archive, and a reconnecting WebSocket transport streaming to a remote
// collector. Nothing in the logging path panics or returns an error to the
// log call site; failures degrade to console diagnostics.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const separatorWidth = 80

// Router filters, formats, and fans out log records. Configuration is
// mutable at runtime through the Set* methods; a single mutex guards it.
type Router struct {
	mu      sync.RWMutex
	cfg     Config
	console io.Writer
	file    *FileSink
	archive *Archive
	remote  *Transport
}

// RouterOption customizes a Router at construction.
type RouterOption func(*Router)

// WithConsole redirects the console sink, primarily for tests.
func WithConsole(w io.Writer) RouterOption {
	return func(r *Router) { r.console = w }
}

// WithTransport injects a pre-built remote transport instead of letting
// New construct one from cfg.Remote. The router still owns enable/disable.
func WithTransport(t *Transport) RouterOption {
	return func(r *Router) { r.remote = t }
}

// New creates a Router. Sink initialization failures are reported on the
// console sink and degrade that sink to disabled; New itself never fails.
func New(cfg Config, opts ...RouterOption) *Router {
	r := &Router{cfg: cfg, console: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}

	r.file = NewFileSink(r.diag)
	if cfg.File.Enabled {
		if err := r.file.Init(cfg.File); err != nil {
			r.diag(LevelError, fmt.Sprintf("file logging disabled: %v", err))
		}
	}

	if cfg.Archive.Enabled {
		path := cfg.Archive.Path
		if path == "" {
			path = defaultArchivePath()
		}
		archive, err := OpenArchive(path, cfg.Archive.MaxRows, r.diag)
		if err != nil {
			r.diag(LevelError, fmt.Sprintf("log archive disabled: %v", err))
		} else {
			r.archive = archive
		}
	}

	if r.remote == nil {
		r.remote = NewTransport(WithDiagnostics(r.diag))
	}
	if cfg.Remote.Enabled {
		if err := r.remote.Enable(EnableOptions{
			AutoDiscover: cfg.Remote.AutoDiscover,
			Host:         cfg.Remote.Host,
			Port:         cfg.Remote.Port,
			Path:         cfg.Remote.Path,
			ServiceName:  cfg.Remote.ServiceName,
		}); err != nil {
			r.diag(LevelError, fmt.Sprintf("remote logging disabled: %v", err))
		}
	}
	return r
}

// Log routes one record through the filter pipeline and the sink fan-out.
// It never panics and never blocks on a failing sink.
func (r *Router) Log(level Level, msg string, opts ...RecordOption) {
	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()

	if !cfg.Enabled {
		return
	}
	if level.Priority() < cfg.MinLevel.Priority() {
		return
	}

	rec := Record{Time: time.Now(), Level: level, Message: msg}
	for _, opt := range opts {
		opt(&rec)
	}
	if !passTagFilter(cfg, rec.Tag) {
		return
	}
	rec.Location = callerLocation()

	r.dispatch(cfg, rec, formatLine(cfg, rec))
}

// Temp logs at the temp side-channel level (filters like debug).
func (r *Router) Temp(msg string, opts ...RecordOption) { r.Log(LevelTemp, msg, opts...) }

// Debug logs at debug level.
func (r *Router) Debug(msg string, opts ...RecordOption) { r.Log(LevelDebug, msg, opts...) }

// Info logs at info level.
func (r *Router) Info(msg string, opts ...RecordOption) { r.Log(LevelInfo, msg, opts...) }

// Success logs at the success side-channel level (filters like info).
func (r *Router) Success(msg string, opts ...RecordOption) { r.Log(LevelSuccess, msg, opts...) }

// Warning logs at warning level.
func (r *Router) Warning(msg string, opts ...RecordOption) { r.Log(LevelWarning, msg, opts...) }

// Error logs at error level.
func (r *Router) Error(msg string, opts ...RecordOption) { r.Log(LevelError, msg, opts...) }

// Fatal logs at fatal level. It does not terminate the process; the
// embedding application decides what fatal means.
func (r *Router) Fatal(msg string, opts ...RecordOption) { r.Log(LevelFatal, msg, opts...) }

// Separator writes a fixed-width delimiter line through the same fan-out
// as Log, at info level.
func (r *Router) Separator() {
	r.Log(LevelInfo, strings.Repeat("-", separatorWidth))
}

// Title writes msg centered in a fixed-width delimiter line.
func (r *Router) Title(msg string) {
	if len(msg) > separatorWidth-4 {
		msg = msg[:separatorWidth-4]
	}
	pad := separatorWidth - len(msg) - 2
	left := pad / 2
	r.Log(LevelInfo, strings.Repeat("=", left)+" "+msg+" "+strings.Repeat("=", pad-left))
}

// dispatch fans one formatted record out to every sink. Sinks are
// independent: a panic or failure in one never blocks the others.
func (r *Router) dispatch(cfg Config, rec Record, line string) {
	guard(func() {
		fmt.Fprintln(r.console, line)
	})
	if cfg.MirrorSlog {
		guard(func() { mirrorToSlog(rec) })
	}
	if cfg.File.Enabled && rec.Level.Priority() >= cfg.File.MinLevel.Priority() {
		guard(func() { r.file.Write(line) })
	}
	if r.archive != nil && cfg.Archive.Enabled && rec.Level.Priority() >= cfg.Archive.MinLevel.Priority() {
		guard(func() { r.archive.Append(rec) })
	}
	if cfg.Remote.Enabled && rec.Level.Priority() >= cfg.Remote.MinLevel.Priority() {
		guard(func() { r.remote.Send(rec) })
	}
}

// diag reports sink-internal problems through the console (and developer
// channel) only, so a failing file/remote sink cannot recurse into itself.
func (r *Router) diag(level Level, msg string) {
	r.mu.RLock()
	cfg := r.cfg
	r.mu.RUnlock()
	rec := Record{Time: time.Now(), Level: level, Message: msg, Tag: "Logging"}
	guard(func() {
		fmt.Fprintln(r.console, formatLine(cfg, rec))
	})
	if cfg.MirrorSlog {
		guard(func() { mirrorToSlog(rec) })
	}
}

// FileSink exposes the rotating file sink for listing, clearing, and
// exporting log files.
func (r *Router) FileSink() *FileSink { return r.file }

// ArchiveSink exposes the SQLite archive, or nil when disabled.
func (r *Router) ArchiveSink() *Archive { return r.archive }

// RemoteTransport exposes the remote transport.
func (r *Router) RemoteTransport() *Transport { return r.remote }

// SetEnabled toggles the global enabled gate.
func (r *Router) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.cfg.Enabled = enabled
	r.mu.Unlock()
}

// SetMinLevel changes the minimum level filter.
func (r *Router) SetMinLevel(level Level) {
	r.mu.Lock()
	r.cfg.MinLevel = level
	r.mu.Unlock()
}

// SetIncludeTags replaces the include tag set.
func (r *Router) SetIncludeTags(tags []string) {
	r.mu.Lock()
	r.cfg.IncludeTags = append([]string(nil), tags...)
	r.mu.Unlock()
}

// SetExcludeTags replaces the exclude tag set.
func (r *Router) SetExcludeTags(tags []string) {
	r.mu.Lock()
	r.cfg.ExcludeTags = append([]string(nil), tags...)
	r.mu.Unlock()
}

// Config returns a copy of the current configuration.
func (r *Router) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Close tears down every sink: the file handle is closed, the archive
// database released, and the remote transport disabled. In-flight writes
// finish; future ones are dropped.
func (r *Router) Close() {
	r.remote.Disable()
	if r.archive != nil {
		guard(func() { _ = r.archive.Close() })
	}
	r.file.Close()
}

func passTagFilter(cfg Config, tag string) bool {
	if len(cfg.IncludeTags) > 0 {
		if tag == "" {
			return false
		}
		for _, t := range cfg.IncludeTags {
			if t == tag {
				return true
			}
		}
		return false
	}
	if tag != "" {
		for _, t := range cfg.ExcludeTags {
			if t == tag {
				return false
			}
		}
	}
	return true
}

func mirrorToSlog(rec Record) {
	args := make([]any, 0, 6)
	if rec.Tag != "" {
		args = append(args, slog.String("tag", rec.Tag))
	}
	if rec.Err != nil {
		args = append(args, slog.String("error", rec.Err.Error()))
	}
	if rec.Location != "" {
		args = append(args, slog.String("location", rec.Location))
	}
	switch rec.Level.Priority() {
	case 0:
		slog.Debug(rec.Message, args...)
	case 1:
		slog.Info(rec.Message, args...)
	case 2:
		slog.Warn(rec.Message, args...)
	default:
		slog.Error(rec.Message, args...)
	}
}

// guard isolates one sink call; a panicking sink must not take down the
// fan-out or the caller.
func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
