package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalTransport is a Transport rooted at a directory on the local
// filesystem: Get opens the file directly for sequential reading, Put
// writes to a temporary sibling file and renames it into place on
// CompleteUpload so a reader never observes a partial write.
type LocalTransport struct {
	directory string
}

// NewLocalTransport returns a LocalTransport rooted at directory. The
// directory need not exist yet; it is created on first write.
func NewLocalTransport(directory string) *LocalTransport {
	return &LocalTransport{directory: directory}
}

func (t *LocalTransport) Path() string {
	return t.directory
}

func (t *LocalTransport) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(t.directory, filepath.FromSlash(key))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return nil, fmt.Errorf("transport: opening %s: %w", path, err)
	}
	return f, nil
}

func (t *LocalTransport) Put(_ context.Context, key string) (WriteCanceler, error) {
	path := filepath.Join(t.directory, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("transport: creating parent directories for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("transport: creating temp file for %s: %w", path, err)
	}

	return &localWriteStream{tmp: tmp, finalPath: path}, nil
}

// localWriteStream buffers a write to a temporary file and only makes it
// visible at its final path on CompleteUpload, so Get never observes a
// partially-written object.
type localWriteStream struct {
	tmp       *os.File
	finalPath string
	done      bool
}

func (w *localWriteStream) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

func (w *localWriteStream) CompleteUpload(_ context.Context) error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("transport: closing temp file: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), w.finalPath); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("transport: finalizing %s: %w", w.finalPath, err)
	}
	return nil
}

func (w *localWriteStream) CancelUpload(_ context.Context) error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	return os.Remove(w.tmp.Name())
}
