package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// documentRowID is the primary key of the single row holding the document
const documentRowID = 1

// SQLBackend keeps the document as one row of the documents table
type SQLBackend struct {
	db        *sql.DB
	loadQuery string
	saveQuery string
}

// NewSQLiteBackend opens (or creates) a SQLite database and applies migrations
func NewSQLiteBackend(ctx context.Context, dsn string) (*SQLBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}

	return newSQLBackend(ctx, db, goose.DialectSQLite3,
		`SELECT body FROM documents WHERE id = ?`,
		`INSERT INTO documents (id, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
	)
}

// NewPostgresBackend connects to PostgreSQL and applies migrations
func NewPostgresBackend(ctx context.Context, databaseURL string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLBackend(ctx, db, goose.DialectPostgres,
		`SELECT body FROM documents WHERE id = $1`,
		`INSERT INTO documents (id, body, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
	)
}

func newSQLBackend(ctx context.Context, db *sql.DB, dialect goose.Dialect, loadQuery, saveQuery string) (*SQLBackend, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLBackend{db: db, loadQuery: loadQuery, saveQuery: saveQuery}, nil
}

func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Load reads the document row. A missing row is an empty document.
func (b *SQLBackend) Load(ctx context.Context) (*Document, error) {
	var body []byte
	err := b.db.QueryRowContext(ctx, b.loadQuery, documentRowID).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return decodeDocument(body)
}

// Save upserts the document row
func (b *SQLBackend) Save(ctx context.Context, doc *Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	if _, err := b.db.ExecContext(ctx, b.saveQuery, documentRowID, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	return nil
}

// Close releases the database handle
func (b *SQLBackend) Close() error {
	return b.db.Close()
}
