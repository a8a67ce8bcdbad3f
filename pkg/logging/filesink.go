package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	filePrefix      = "app_"
	fileSuffix      = ".log"
	fileTimeLayout  = "20060102_1504"
	exportDirName   = "exported"
	exportPrefix    = "exported_logs_"
	exportDelimiter = "----------------------------------------"
)

// LogFileInfo describes one on-disk log file.
type LogFileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FileSink appends formatted log lines to a size-bounded, rotated set of
// dated files. The sink owns exactly one open handle at a time, closed and
// reopened under rotation. All I/O failures are absorbed: init failures
// leave the sink uninitialized until the next Init, write failures are
// reported through diag and skipped.
type FileSink struct {
	mu    sync.Mutex
	cfg   FileConfig
	ready bool
	dir   string
	path  string
	file  *os.File
	size  int64
	diag  func(Level, string)
}

// NewFileSink creates an uninitialized sink. diag receives sink-internal
// problems on a non-file path; nil means they are dropped.
func NewFileSink(diag func(Level, string)) *FileSink {
	if diag == nil {
		diag = func(Level, string) {}
	}
	return &FileSink{diag: diag}
}

// Init resolves the log directory, creates it if absent, computes a fresh
// dated filename, prunes files beyond MaxCount, and marks the sink ready.
// A returned error means file logging stays disabled until re-initialized.
func (s *FileSink) Init(cfg FileConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.cfg = cfg
	s.ready = false
	if !cfg.Enabled {
		return nil
	}
	return s.initLocked()
}

func (s *FileSink) initLocked() error {
	dir := s.cfg.Dir
	if dir == "" {
		dir = DefaultLogDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	s.dir = dir

	// Keep room for the file about to be created so the retained set never
	// exceeds MaxCount.
	if s.cfg.MaxCount > 0 {
		s.pruneLocked(s.cfg.MaxCount - 1)
	}

	stamp := time.Now().Format(fileTimeLayout)
	path := filepath.Join(dir, filePrefix+stamp+fileSuffix)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s%s_%d%s", filePrefix, stamp, i, fileSuffix))
	}
	s.path = path
	s.size = 0
	s.ready = true
	return nil
}

// Write appends one formatted line, rotating first when the active file
// would meet or exceed MaxSize. Color escapes are stripped before
// persistence. Write is a no-op on an uninitialized sink.
func (s *FileSink) Write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return
	}
	line = StripANSI(line)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if s.cfg.MaxSize > 0 && s.size > 0 && s.size+int64(len(line)) >= s.cfg.MaxSize {
		s.closeLocked()
		if err := s.initLocked(); err != nil {
			s.ready = false
			s.diag(LevelError, fmt.Sprintf("log rotation failed, file logging disabled: %v", err))
			return
		}
	}
	if s.file == nil {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			// Transient: the sink stays enabled and the next write retries.
			s.diag(LevelError, fmt.Sprintf("open log file: %v", err))
			return
		}
		s.file = f
	}
	n, err := s.file.WriteString(line)
	s.size += int64(n)
	if err != nil {
		s.diag(LevelError, fmt.Sprintf("write log file: %v", err))
	}
}

// List returns the existing log files sorted newest-first by modification
// time.
func (s *FileSink) List() ([]LogFileInfo, error) {
	s.mu.Lock()
	dir := s.dir
	s.mu.Unlock()
	if dir == "" {
		return nil, nil
	}
	return listLogFiles(dir)
}

// Clear deletes every log file and resets the sink to uninitialized.
func (s *FileSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.ready = false
	if s.dir == "" {
		return nil
	}
	files, err := listLogFiles(s.dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil {
			return fmt.Errorf("remove %s: %w", f.Path, err)
		}
	}
	return nil
}

// Export merges every existing log file, oldest first, into a single file
// under the export directory. The export starts with a manifest header and
// separates source files with delimiter lines. It returns the export path.
func (s *FileSink) Export() (string, error) {
	s.mu.Lock()
	dir := s.dir
	if s.file != nil {
		_ = s.file.Sync()
	}
	s.mu.Unlock()
	if dir == "" {
		return "", fmt.Errorf("file sink not initialized")
	}
	files, err := listLogFiles(dir)
	if err != nil {
		return "", err
	}
	// Oldest first so the export reads chronologically.
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })

	exportDir := filepath.Join(dir, exportDirName)
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	exportPath := filepath.Join(exportDir, exportPrefix+time.Now().Format(fileTimeLayout)+fileSuffix)
	out, err := os.Create(exportPath)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer out.Close()

	fmt.Fprintf(out, "Beacon log export %s\n", uuid.NewString())
	fmt.Fprintf(out, "Exported at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(out, "Source files: %d\n", len(files))
	for _, f := range files {
		fmt.Fprintf(out, "%s %s %s\n", exportDelimiter, filepath.Base(f.Path), exportDelimiter)
		data, err := os.ReadFile(f.Path)
		if err != nil {
			fmt.Fprintf(out, "(unreadable: %v)\n", err)
			continue
		}
		out.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			out.Write([]byte{'\n'})
		}
	}
	return exportPath, nil
}

// Ready reports whether the sink is initialized and accepting writes.
func (s *FileSink) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// ActivePath returns the path writes currently land in.
func (s *FileSink) ActivePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Close releases the open file handle and marks the sink uninitialized.
func (s *FileSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.ready = false
}

func (s *FileSink) closeLocked() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

// pruneLocked deletes the oldest files by modification time until at most
// keep remain.
func (s *FileSink) pruneLocked(keep int) {
	if keep < 0 {
		keep = 0
	}
	files, err := listLogFiles(s.dir)
	if err != nil {
		s.diag(LevelWarning, fmt.Sprintf("prune log files: %v", err))
		return
	}
	for i := len(files) - 1; i >= keep; i-- {
		if err := os.Remove(files[i].Path); err != nil {
			s.diag(LevelWarning, fmt.Sprintf("prune %s: %v", files[i].Path, err))
		}
	}
}

// listLogFiles returns app_*.log files under dir, newest-first by mtime.
func listLogFiles(dir string) ([]LogFileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	files := make([]LogFileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFileInfo{
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.After(files[j].ModTime) })
	return files, nil
}
