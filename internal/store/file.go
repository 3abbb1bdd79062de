// ABOUTME: File medium storing the document as data.json in a data directory
// ABOUTME: Writes go to a temp file that is fsynced and renamed into place

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DocumentFileName is the name of the document file inside the data directory.
const DocumentFileName = "data.json"

// FileMedium persists the document in a single JSON file.
type FileMedium struct {
	path string
}

// NewFileMedium returns a medium rooted at dir, creating the directory if needed.
func NewFileMedium(dir string) (*FileMedium, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileMedium{path: filepath.Join(dir, DocumentFileName)}, nil
}

// NewFileStore opens a DocumentStore persisting to dir/data.json.
func NewFileStore(dir string, opts ...Option) (*DocumentStore, error) {
	m, err := NewFileMedium(dir)
	if err != nil {
		return nil, err
	}
	return New(m, opts...), nil
}

// Path returns the document file path.
func (f *FileMedium) Path() string {
	return f.path
}

// Read implements Medium.
func (f *FileMedium) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Write implements Medium. The new content becomes visible in a single rename.
func (f *FileMedium) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.path)

	tmp, err := os.CreateTemp(dir, "."+DocumentFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming document into place: %w", err)
	}

	// Make the rename durable.
	if parent, err := os.Open(dir); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Close implements Medium.
func (f *FileMedium) Close() error {
	return nil
}

func (f *FileMedium) String() string {
	return "file:" + f.path
}
