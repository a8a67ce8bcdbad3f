package logging

import "strings"

// Level identifies the severity of a log record. Five levels form the
// ordered filtering axis debug < info < warning < error < fatal; Temp and
// Success are side-channel levels that filter like debug and info
// respectively but render distinctly.
type Level int

const (
	LevelTemp Level = iota
	LevelDebug
	LevelInfo
	LevelSuccess
	LevelWarning
	LevelError
	LevelFatal
)

// Priority returns the position of l on the ordered filtering axis:
// debug(0) < info(1) < warning(2) < error(3) < fatal(4). Minimum-level
// filtering compares priorities, so Temp is kept whenever Debug is and
// Success whenever Info is.
func (l Level) Priority() int {
	switch l {
	case LevelTemp, LevelDebug:
		return 0
	case LevelInfo, LevelSuccess:
		return 1
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	case LevelFatal:
		return 4
	default:
		return 0
	}
}

// Label returns the uppercase rendering label.
func (l Level) Label() string {
	switch l {
	case LevelTemp:
		return "TEMP"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelSuccess:
		return "SUCCESS"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "DEBUG"
	}
}

// Icon returns the glyph rendered next to the label.
func (l Level) Icon() string {
	switch l {
	case LevelTemp:
		return "🚧"
	case LevelDebug:
		return "🐛"
	case LevelInfo:
		return "💡"
	case LevelSuccess:
		return "✅"
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "⛔"
	case LevelFatal:
		return "💀"
	default:
		return ""
	}
}

// String returns the lowercase wire label.
func (l Level) String() string {
	return strings.ToLower(l.Label())
}

// color returns the ANSI escape sequence used when color output is enabled.
func (l Level) color() string {
	switch l {
	case LevelTemp:
		return "\x1b[90m"
	case LevelDebug:
		return "\x1b[36m"
	case LevelInfo:
		return "\x1b[37m"
	case LevelSuccess:
		return "\x1b[32m"
	case LevelWarning:
		return "\x1b[33m"
	case LevelError:
		return "\x1b[31m"
	case LevelFatal:
		return "\x1b[1;31m"
	default:
		return ""
	}
}

// ParseLevel maps a label (any case) to its Level. It reports false for
// unrecognized labels.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temp":
		return LevelTemp, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "success":
		return LevelSuccess, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	case "fatal":
		return LevelFatal, true
	default:
		return LevelDebug, false
	}
}
