package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/paypledge/settlement/internal/interfaces"
	"github.com/paypledge/settlement/internal/models"
)

// MemoryDocumentStore is an in-process DocumentStore with the same versioning
// semantics as the postgres store. Used by tests and by sandbox deployments
// that run without a database.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string]interfaces.Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]interfaces.Document)}
}

func (s *MemoryDocumentStore) Get(ctx context.Context, id string) (*interfaces.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	copied := doc
	copied.Data = append(json.RawMessage(nil), doc.Data...)
	return &copied, nil
}

func (s *MemoryDocumentStore) Put(ctx context.Context, doc *interfaces.Document, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.docs[doc.ID]
	if expectedVersion == 0 {
		if ok {
			return 0, fmt.Errorf("%w: document %s already exists", models.ErrConcurrencyConflict, doc.ID)
		}
		s.docs[doc.ID] = interfaces.Document{
			ID:      doc.ID,
			Kind:    doc.Kind,
			Version: 1,
			Data:    append(json.RawMessage(nil), doc.Data...),
		}
		return 1, nil
	}
	if !ok {
		return 0, fmt.Errorf("%w: document %s", models.ErrNotFound, doc.ID)
	}
	if existing.Version != expectedVersion {
		return 0, fmt.Errorf("%w: stale version %d for document %s", models.ErrConcurrencyConflict, expectedVersion, doc.ID)
	}
	existing.Version++
	existing.Data = append(json.RawMessage(nil), doc.Data...)
	s.docs[doc.ID] = existing
	return existing.Version, nil
}

func (s *MemoryDocumentStore) Query(ctx context.Context, kind string, match func(json.RawMessage) bool) ([]interfaces.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []interfaces.Document
	for _, doc := range s.docs {
		if doc.Kind != kind {
			continue
		}
		if match == nil || match(doc.Data) {
			copied := doc
			copied.Data = append(json.RawMessage(nil), doc.Data...)
			out = append(out, copied)
		}
	}
	return out, nil
}
