package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// The server log file is trimmed back to its newest keepLogBytes once it
// grows past maxLogBytes.
const (
	maxLogBytes  = 6 * 1024 * 1024
	keepLogBytes = 5 * 1024 * 1024
)

// parseLogLevel maps a config level name to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ensureParentDir creates the directory holding path. In-memory databases and
// bare file names need nothing.
func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// cappedLog is an append-only log file that drops its oldest lines when it
// exceeds limit, keeping roughly the newest keep bytes.
type cappedLog struct {
	mu    sync.Mutex
	file  *os.File
	limit int64
	keep  int64
}

func openCappedLog(path string, limit, keep int64) (*cappedLog, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l := &cappedLog{file: file, limit: limit, keep: keep}
	if err := l.trim(); err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

func (l *cappedLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.file.Write(p)
	if err != nil {
		return n, err
	}
	return n, l.trim()
}

func (l *cappedLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// trim rewrites the file with its tail once it is over limit. The tail starts
// after the first newline so no partial record survives.
func (l *cappedLog) trim() error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= l.limit {
		return nil
	}

	tail := make([]byte, l.keep)
	n, err := l.file.ReadAt(tail, size-l.keep)
	if err != nil && err != io.EOF {
		return err
	}
	tail = tail[:n]
	if i := bytes.IndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}

	if err := l.file.Truncate(0); err != nil {
		return err
	}
	// O_APPEND writes land at the new end regardless of the offset.
	_, err = l.file.Write(tail)
	return err
}
