package logging

import (
	"os"
	"path/filepath"
)

// Config is the full configuration surface of a Router. The zero value is a
// disabled router; DefaultConfig returns the console-only defaults.
type Config struct {
	Enabled       bool
	MinLevel      Level
	ShowTimestamp bool
	ShowLocation  bool
	UseColor      bool

	// IncludeTags, when non-empty, suppresses every record whose tag is
	// absent from the set (untagged records included). ExcludeTags applies
	// only when IncludeTags is empty.
	IncludeTags []string
	ExcludeTags []string

	// MirrorSlog forwards every surviving record to the process slog
	// default handler (the developer channel).
	MirrorSlog bool

	File    FileConfig
	Remote  RemoteConfig
	Archive ArchiveConfig
}

// FileConfig configures the rotating file sink.
type FileConfig struct {
	Enabled  bool
	MinLevel Level
	// Dir is the log directory; empty means DefaultLogDir().
	Dir string
	// MaxSize is the rotation threshold in bytes for a single file.
	MaxSize int64
	// MaxCount is the number of rotated files retained; the oldest by
	// modification time are deleted first.
	MaxCount int
}

// RemoteConfig configures streaming to a remote collector.
type RemoteConfig struct {
	Enabled      bool
	MinLevel     Level
	AutoDiscover bool
	Host         string
	Port         int
	Path         string
	// ServiceName, when set, restricts auto-discovery to the collector
	// instance advertising that name.
	ServiceName string
}

// ArchiveConfig configures the local SQLite archive sink.
type ArchiveConfig struct {
	Enabled  bool
	MinLevel Level
	// Path is the database file; empty means archive.db inside DefaultLogDir().
	Path string
	// MaxRows caps the number of retained records; oldest rows are pruned.
	MaxRows int
}

// DefaultConfig returns an enabled console-only configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		MinLevel:      LevelDebug,
		ShowTimestamp: true,
		ShowLocation:  true,
		UseColor:      true,
		File: FileConfig{
			MinLevel: LevelInfo,
			MaxSize:  1 << 20,
			MaxCount: 5,
		},
		Remote: RemoteConfig{
			MinLevel: LevelInfo,
			Path:     "/logs",
		},
		Archive: ArchiveConfig{
			MinLevel: LevelInfo,
			MaxRows:  10000,
		},
	}
}

// DefaultLogDir resolves the private log directory, preferring
// XDG_STATE_HOME and falling back to ~/.local/state.
func DefaultLogDir() string {
	if stateDir := os.Getenv("XDG_STATE_HOME"); stateDir != "" {
		return filepath.Join(stateDir, "beacon", "logs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".beacon", "logs")
	}
	return filepath.Join(home, ".local", "state", "beacon", "logs")
}
