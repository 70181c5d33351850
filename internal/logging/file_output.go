package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/diode"
)

// RotatingFile appends to path and renames it aside with a timestamp suffix
// once it would grow past maxSize. A maxSize of zero never rotates.
type RotatingFile struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	size    int64
	now     func() time.Time
}

func OpenRotatingFile(path string, maxSize int64) (*RotatingFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	rf := &RotatingFile{path: path, maxSize: maxSize, now: time.Now}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.maxSize > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.maxSize {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return err
	}
	ext := filepath.Ext(rf.path)
	base := rf.path[:len(rf.path)-len(ext)]
	aside := fmt.Sprintf("%s-%s%s", base, rf.now().Format("20060102-150405.000"), ext)
	if err := os.Rename(rf.path, aside); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return rf.open()
}

func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.file.Close()
}

// OpenOutput returns the writer selected by cfg.File. With Async set, writes
// go through a ring buffer and are dropped rather than blocking when the disk
// falls behind.
func OpenOutput(cfg Config) (io.WriteCloser, error) {
	if cfg.File == "" {
		return nopCloser{os.Stderr}, nil
	}
	rf, err := OpenRotatingFile(cfg.File, int64(cfg.MaxSizeMB)<<20)
	if err != nil {
		return nil, err
	}
	if !cfg.Async {
		return rf, nil
	}
	return diode.NewWriter(rf, 4096, 10*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "logging: dropped %d messages\n", missed)
	}), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
