package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paypledge/settlement/internal/interfaces"
	"github.com/paypledge/settlement/internal/models"
)

// PostgresDocumentStore keeps every entity as one versioned JSONB document.
// Writes are compare-and-swap on the version column, so a concurrent update
// surfaces as models.ErrConcurrencyConflict instead of silently clobbering
// the balance invariant.
type PostgresDocumentStore struct {
	db *sql.DB
}

func NewPostgresDocumentStore(db *sql.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

func (s *PostgresDocumentStore) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id VARCHAR(255) PRIMARY KEY,
			kind VARCHAR(50) NOT NULL,
			version BIGINT NOT NULL,
			data JSONB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_kind ON documents(kind)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
	}

	return nil
}

func (s *PostgresDocumentStore) Get(ctx context.Context, id string) (*interfaces.Document, error) {
	doc := interfaces.Document{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT kind, version, data FROM documents WHERE id = $1
	`, id).Scan(&doc.Kind, &doc.Version, (*[]byte)(&doc.Data))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return &doc, nil
}

func (s *PostgresDocumentStore) Put(ctx context.Context, doc *interfaces.Document, expectedVersion int64) (int64, error) {
	if expectedVersion == 0 {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO documents (id, kind, version, data)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (id) DO NOTHING
		`, doc.ID, doc.Kind, []byte(doc.Data))
		if err != nil {
			return 0, fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		if rows == 0 {
			return 0, fmt.Errorf("%w: document %s already exists", models.ErrConcurrencyConflict, doc.ID)
		}
		return 1, nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET data = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`, []byte(doc.Data), doc.ID, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if rows == 0 {
		return 0, fmt.Errorf("%w: stale version %d for document %s", models.ErrConcurrencyConflict, expectedVersion, doc.ID)
	}
	return expectedVersion + 1, nil
}

func (s *PostgresDocumentStore) Query(ctx context.Context, kind string, match func(json.RawMessage) bool) ([]interfaces.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, data FROM documents WHERE kind = $1
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	defer rows.Close()

	var out []interfaces.Document
	for rows.Next() {
		doc := interfaces.Document{Kind: kind}
		if err := rows.Scan(&doc.ID, &doc.Version, (*[]byte)(&doc.Data)); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		if match == nil || match(doc.Data) {
			out = append(out, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return out, nil
}
