package collector

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds the collector's runtime settings.
type Config struct {
	Addr     string
	LogLevel slog.Level

	PingPeriod          time.Duration
	WriteWait           time.Duration
	ReadTimeout         time.Duration
	MaxMessageSize      int64
	HealthCheckInterval time.Duration

	ArchivePath    string
	ArchiveMaxRows int

	Advertise bool
	Instance  string
}

// DefaultConfig returns the settings a flagless invocation runs with.
func DefaultConfig() *Config {
	return &Config{
		Addr:                ":9400",
		LogLevel:            slog.LevelInfo,
		PingPeriod:          30 * time.Second,
		WriteWait:           10 * time.Second,
		ReadTimeout:         90 * time.Second,
		MaxMessageSize:      1 << 20,
		HealthCheckInterval: 60 * time.Second,
		ArchiveMaxRows:      10000,
		Instance:            "beacon-collector",
	}
}

// ParseCfg builds the configuration from command-line flags, with
// environment variables supplying flag defaults. Flags take priority over
// environment, environment over built-in defaults.
func ParseCfg() *Config {
	def := DefaultConfig()

	addr := flag.String("addr", envOr("ADDR", def.Addr), "listen address")
	logLevel := flag.String("log_level", envOr("LOG_LEVEL", "INFO"), "log level (DEBUG, INFO, WARN, ERROR)")
	archivePath := flag.String("archive_path", envOr("ARCHIVE_PATH", ""), "SQLite archive path (empty disables archiving)")
	archiveMaxRows := flag.String("archive_max_rows", envOr("ARCHIVE_MAX_ROWS", strconv.Itoa(def.ArchiveMaxRows)), "archived row cap")
	advertise := flag.Bool("advertise", envOr("ADVERTISE", "") == "true", "advertise the collector via mDNS")
	instance := flag.String("instance", envOr("INSTANCE", def.Instance), "mDNS instance name")
	flag.Parse()

	cfg := def
	cfg.Addr = *addr
	cfg.LogLevel = getLogLevel(*logLevel)
	cfg.ArchivePath = *archivePath
	if n, err := strconv.Atoi(*archiveMaxRows); err == nil && n >= 0 {
		cfg.ArchiveMaxRows = n
	}
	cfg.Advertise = *advertise
	cfg.Instance = *instance
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getLogLevel maps a level name to its slog level, defaulting to Info for
// anything unrecognized.
func getLogLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "info", "INFO":
		return slog.LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
