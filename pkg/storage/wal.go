package storage

import (
	"os"
	"sync"
)

// FileWAL is an append-only log of newline-terminated records.
type FileWAL struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &FileWAL{f: f}, nil
}

// Append writes each record on its own line and syncs the file.
func (w *FileWAL) Append(records ...[]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range records {
		line := make([]byte, 0, len(rec)+1)
		line = append(append(line, rec...), '\n')
		if _, err := w.f.Write(line); err != nil {
			return Error.Wrap(err)
		}
	}
	return Error.Wrap(w.f.Sync())
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Error.Wrap(w.f.Close())
}
