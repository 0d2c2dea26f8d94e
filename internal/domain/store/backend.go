package store

import (
	"os"
	"path/filepath"
)

// FileBackend stores the document as a single file, written atomically via
// a temp-file rename so a crash mid-write never corrupts saved positions.
type FileBackend struct {
	Path string
}

// NewFileBackend creates a file-backed store blob at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

// Read returns the file contents; a missing file reads as empty.
func (b *FileBackend) Read() ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// Write replaces the file contents atomically.
func (b *FileBackend) Write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(b.Path), 0o755); err != nil {
		return err
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}

// MemoryBackend keeps the blob in memory. Used by tests.
type MemoryBackend struct {
	Data   []byte
	Writes int
	Err    error
}

func (b *MemoryBackend) Read() ([]byte, error) { return b.Data, nil }

func (b *MemoryBackend) Write(data []byte) error {
	if b.Err != nil {
		return b.Err
	}
	b.Data = append([]byte(nil), data...)
	b.Writes++
	return nil
}
