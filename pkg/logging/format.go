package logging

import (
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

const ansiReset = "\x1b[0m"

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes ANSI color escape sequences from s. File and archive
// sinks persist plain text regardless of the console color setting.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiPattern.ReplaceAllString(s, "")
}

// formatLine renders one record as a single console/file line:
//
//	HH:MM:SS.mmm [ICON LEVEL] #Tag @file.ext:line: message
//
// Segments are omitted when their display flag is off or the data is
// absent. The whole line is wrapped in the level's color when enabled.
func formatLine(cfg Config, rec Record) string {
	var b strings.Builder
	if cfg.ShowTimestamp {
		b.WriteString(rec.Time.Format("15:04:05.000"))
		b.WriteByte(' ')
	}
	b.WriteByte('[')
	if icon := rec.Level.Icon(); icon != "" {
		b.WriteString(icon)
		b.WriteByte(' ')
	}
	b.WriteString(rec.Level.Label())
	b.WriteByte(']')
	if rec.Tag != "" {
		b.WriteString(" #")
		b.WriteString(rec.Tag)
	}
	if cfg.ShowLocation && rec.Location != "" {
		b.WriteString(" @")
		b.WriteString(rec.Location)
	}
	b.WriteString(": ")
	b.WriteString(rec.Message)
	if rec.Err != nil {
		b.WriteString(" | ")
		b.WriteString(rec.Err.Error())
	}
	if rec.Stack != "" {
		b.WriteByte('\n')
		b.WriteString(strings.TrimRight(rec.Stack, "\n"))
	}
	line := b.String()
	if cfg.UseColor {
		if c := rec.Level.color(); c != "" {
			line = c + line + ansiReset
		}
	}
	return line
}

// callerLocation walks the stack past every frame belonging to this
// package and returns "file.ext:line" for the first external frame. It is
// best-effort: any failure yields the empty string, never a panic.
func callerLocation() (loc string) {
	defer func() {
		if recover() != nil {
			loc = ""
		}
	}()
	pc := make([]uintptr, 24)
	n := runtime.Callers(2, pc)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" && !strings.Contains(frame.Function, "beacon/pkg/logging") {
			return filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
		}
		if !more {
			return ""
		}
	}
}
