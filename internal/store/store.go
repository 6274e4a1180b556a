// Package store owns the users, posts and notifications of the system.
//
// Every operation runs a full cycle against the backend: load the whole
// document, inspect or mutate it in memory, and (for writers) save the whole
// document back. A single mutex spans the cycle, so two writers can never
// interleave and overwrite each other's changes. When the mutation callback
// returns an error nothing is saved.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prekclip/server/internal/config"
)

// Store serializes access to the persisted document
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *zap.Logger
}

// New creates a store over the given backend
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger.Named("store")}
}

// Open creates the backend selected by configuration
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageDriver {
	case config.DriverFile, "":
		return NewFileBackend(cfg.DBFile)
	case config.DriverSQLite:
		return NewSQLiteBackend(ctx, cfg.DBDSN)
	case config.DriverPostgres:
		return NewPostgresBackend(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// View loads the document and passes it to fn without saving
func (s *Store) View(ctx context.Context, fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	return fn(doc)
}

// Update loads the document, applies fn and saves the result.
// If fn fails the document is discarded and nothing is written.
func (s *Store) Update(ctx context.Context, fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}

	if err := fn(doc); err != nil {
		return err
	}

	if err := s.backend.Save(ctx, doc); err != nil {
		s.logger.Error("failed to persist document", zap.Error(err))
		return err
	}

	s.logger.Debug("document saved",
		zap.Int("users", len(doc.Users)),
		zap.Int("posts", len(doc.Posts)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// Replace overwrites the whole document, used by imports
func (s *Store) Replace(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend.Save(ctx, doc)
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}
