// Package media stores uploaded files and hands back opaque references to them.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/prekclip/server/internal/apperr"
	"github.com/prekclip/server/internal/store"
)

// URLPrefix is the path uploads are served under
const URLPrefix = "/uploads/"

// sniffLen is how many leading bytes are inspected to detect the content type
const sniffLen = 3072

// Common errors
var (
	ErrMissingFile      = fmt.Errorf("%w: no file selected", apperr.ErrBadRequest)
	ErrUnsupportedMedia = fmt.Errorf("%w: only images and videos are supported", apperr.ErrBadRequest)
)

// Stored describes a saved upload
type Stored struct {
	Ref      string
	Kind     store.PostKind
	MimeType string
	Size     int64
}

// Storage writes uploads into a directory
type Storage struct {
	dir string
	now func() time.Time
}

// NewStorage creates the upload directory if needed
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Storage{dir: dir, now: time.Now}, nil
}

// Dir returns the upload directory
func (s *Storage) Dir() string {
	return s.dir
}

// Save sniffs the content, rejects anything that is not an image or video,
// and writes it under a fresh unique name. The original file name only
// contributes its extension when the detected type has none.
func (s *Storage) Save(filename string, r io.Reader) (*Stored, error) {
	if r == nil {
		return nil, ErrMissingFile
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, ErrMissingFile
	}

	mtype := mimetype.Detect(head)
	kind, ok := KindOf(mtype.String())
	if !ok {
		return nil, ErrUnsupportedMedia
	}

	ext := mtype.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:12], ext)

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create media file: %w", err)
	}

	size, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), r))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write media file: %w", err)
	}

	return &Stored{
		Ref:      URLPrefix + name,
		Kind:     kind,
		MimeType: mtype.String(),
		Size:     size,
	}, nil
}

// Remove deletes a previously stored reference, ignoring ones outside the upload dir
func (s *Storage) Remove(ref string) error {
	name, ok := strings.CutPrefix(ref, URLPrefix)
	if !ok || name == "" || strings.ContainsAny(name, `/\`) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove media file: %w", err)
	}
	return nil
}

// KindOf maps a MIME type onto a post kind
func KindOf(mimeType string) (store.PostKind, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return store.PostKindImage, true
	case strings.HasPrefix(mimeType, "video/"):
		return store.PostKindVideo, true
	default:
		return "", false
	}
}
