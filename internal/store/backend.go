package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Backend persists the whole document. Load and Save never deal in partial state.
type Backend interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	Close() error
}

func decodeDocument(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	doc.normalize()
	return doc, nil
}

func encodeDocument(doc *Document) ([]byte, error) {
	doc.normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}
