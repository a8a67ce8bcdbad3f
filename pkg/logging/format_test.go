package logging

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var formatTime = time.Date(2026, 8, 25, 15, 4, 5, 123_000_000, time.UTC)

func TestFormatLine(t *testing.T) {
	base := Config{Enabled: true, ShowTimestamp: true, ShowLocation: true}

	cases := []struct {
		name string
		cfg  Config
		rec  Record
		want string
	}{
		{
			name: "all segments",
			cfg:  base,
			rec: Record{
				Time: formatTime, Level: LevelInfo, Message: "hello",
				Tag: "API", Location: "main.go:42",
			},
			want: "15:04:05.123 [💡 INFO] #API @main.go:42: hello",
		},
		{
			name: "no timestamp",
			cfg:  Config{Enabled: true, ShowLocation: true},
			rec:  Record{Time: formatTime, Level: LevelWarning, Message: "careful"},
			want: "[⚠️ WARNING]: careful",
		},
		{
			name: "no tag no location",
			cfg:  base,
			rec:  Record{Time: formatTime, Level: LevelDebug, Message: "plain"},
			want: "15:04:05.123 [🐛 DEBUG]: plain",
		},
		{
			name: "location display disabled",
			cfg:  Config{Enabled: true, ShowTimestamp: true},
			rec: Record{
				Time: formatTime, Level: LevelSuccess, Message: "done",
				Location: "main.go:1",
			},
			want: "15:04:05.123 [✅ SUCCESS]: done",
		},
		{
			name: "error appended",
			cfg:  Config{Enabled: true},
			rec: Record{
				Time: formatTime, Level: LevelError, Message: "save failed",
				Err: errors.New("disk full"),
			},
			want: "[⛔ ERROR]: save failed | disk full",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, formatLine(c.cfg, c.rec))
		})
	}
}

func TestFormatLineStack(t *testing.T) {
	cfg := Config{Enabled: true}
	rec := Record{Time: formatTime, Level: LevelFatal, Message: "crash", Stack: "goroutine 1:\nmain.main()\n"}

	line := formatLine(cfg, rec)
	parts := strings.SplitN(line, "\n", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "[💀 FATAL]: crash", parts[0])
	assert.Equal(t, "goroutine 1:\nmain.main()", parts[1])
}

func TestFormatLineColor(t *testing.T) {
	cfg := Config{Enabled: true, UseColor: true}
	rec := Record{Time: formatTime, Level: LevelError, Message: "boom"}

	line := formatLine(cfg, rec)
	assert.True(t, strings.HasPrefix(line, "\x1b[31m"))
	assert.True(t, strings.HasSuffix(line, ansiReset))
	assert.Equal(t, "[⛔ ERROR]: boom", StripANSI(line))
}

func TestStripANSI(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "no escapes here", "no escapes here"},
		{"single wrap", "\x1b[36mcolored\x1b[0m", "colored"},
		{"bold red", "\x1b[1;31mfatal\x1b[0m", "fatal"},
		{"interleaved", "a\x1b[33mb\x1b[0mc", "abc"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, StripANSI(c.input))
		})
	}
}

func TestCallerLocationNeverPanics(t *testing.T) {
	require.NotPanics(t, func() {
		_ = callerLocation()
	})
}
