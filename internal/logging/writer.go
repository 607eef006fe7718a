package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer that rotates the log file once it
// exceeds a size limit. Rotated files form a fixed shift chain:
// engine.log.1 is the newest, engine.log.<keep> the oldest, and a
// rotation drops the file in the last slot.
type RotatingWriter struct {
	path    string
	maxSize int64
	keep    int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating parent
// directories as needed. maxSizeMB <= 0 defaults to 10 and keep <= 0
// to 1. A pre-existing file already over the limit is rotated at open
// so a restart loop cannot grow one file without bound.
func NewRotatingWriter(path string, maxSizeMB, keep int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if keep <= 0 {
		keep = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:    path,
		maxSize: int64(maxSizeMB) << 20,
		keep:    keep,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	if w.size > w.maxSize {
		if err := w.shift(); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return w, nil
}

// Write appends p, rotating first when it would push the file past the
// limit. A failed rotation is reported to stderr and the write lands
// on the current file, so log lines are never dropped.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size+int64(len(p)) > w.maxSize {
		if err := w.shift(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Sync flushes buffered data to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the current file. Idempotent; the writer rejects
// writes afterwards.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// shift closes the current file, advances the chain from the oldest
// slot down, moves the live file into slot 1, and reopens fresh.
func (w *RotatingWriter) shift() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close log file: %w", err)
		}
		w.file = nil
	}

	slot := func(n int) string { return fmt.Sprintf("%s.%d", w.path, n) }
	_ = os.Remove(slot(w.keep))
	for n := w.keep - 1; n >= 1; n-- {
		_ = os.Rename(slot(n), slot(n+1))
	}
	if err := os.Rename(w.path, slot(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log file: %w", err)
	}

	w.size = 0
	return w.open()
}
