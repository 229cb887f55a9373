package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLogger implements audit logging to NDJSON files with size-based
// rotation
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64
	maxFiles int
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Base directory for audit logs
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/caregrid/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}

	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

func (l *FileLogger) currentPath() string {
	return filepath.Join(l.basePath, "audit.log")
}

// openLogFile opens or creates the current log file, rotating first when
// the size threshold is exceeded
func (l *FileLogger) openLogFile() error {
	filename := l.currentPath()

	if l.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= l.maxSize {
			if err := l.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// rotateFile renames the current file with a timestamp suffix and prunes
// old rotated files
func (l *FileLogger) rotateFile() error {
	rotated := filepath.Join(l.basePath,
		fmt.Sprintf("audit-%s.log", time.Now().UTC().Format("20060102T150405.000000000")))
	if err := os.Rename(l.currentPath(), rotated); err != nil {
		return err
	}
	return l.pruneOldFiles()
}

func (l *FileLogger) pruneOldFiles() error {
	matches, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(matches) <= l.maxFiles {
		return nil
	}
	// Glob returns sorted paths; timestamps sort oldest first.
	for _, path := range matches[:len(matches)-l.maxFiles] {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// Log appends an event as one NDJSON line
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotate {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.file.Close(); err != nil {
				return fmt.Errorf("failed to close audit log file: %w", err)
			}
			if err := l.openLogFile(); err != nil {
				return err
			}
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the current log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
