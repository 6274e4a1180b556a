package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend keeps the document as a single JSON file
type FileBackend struct {
	path string
}

// NewFileBackend opens the document at path, creating an empty one if it does not exist
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	b := &FileBackend{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := b.Save(context.Background(), NewDocument()); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat document: %w", err)
	}

	return b, nil
}

// Path returns the location of the document file
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads and decodes the whole file
func (b *FileBackend) Load(ctx context.Context) (*Document, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return decodeDocument(data)
}

// Save replaces the file through a temp file and rename so readers never see a torn write
func (b *FileBackend) Save(ctx context.Context, doc *Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".document-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}

	return nil
}

// Close is a no-op for files
func (b *FileBackend) Close() error {
	return nil
}
