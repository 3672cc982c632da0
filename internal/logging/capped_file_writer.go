package logging

import (
	"os"
	"sync"
)

// cappedFileWriter truncates the log file back to zero once it grows past
// maxBytes. Crude, but keeps long-running servers from filling the disk.
type cappedFileWriter struct {
	mu       sync.Mutex
	f        *os.File
	size     int64
	maxBytes int64
}

func newCappedFileWriter(path string, maxMB int) (*cappedFileWriter, error) {
	if maxMB < 1 {
		maxMB = 1
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &cappedFileWriter{f: f, size: info.Size(), maxBytes: int64(maxMB) * 1024 * 1024}, nil
}

func (w *cappedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size+int64(len(p)) > w.maxBytes {
		if err := w.f.Truncate(0); err != nil {
			return 0, err
		}
		if _, err := w.f.Seek(0, 0); err != nil {
			return 0, err
		}
		w.size = 0
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *cappedFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
