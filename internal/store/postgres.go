package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cropdoc/internal/types"
)

// PostgresStore keeps each result as one JSONB document.
type PostgresStore struct {
	db          *sql.DB
	schemaMu    sync.Mutex
	schemaReady bool
}

// setupTimeout bounds one-time DDL and bucket creation. They run detached from
// the request so a disconnected caller cannot poison later calls.
const setupTimeout = 15 * time.Second

// OpenPostgres opens a pgx-backed pool and checks connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), setupTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS diagnosis_results (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL DEFAULT '',
    label TEXT NOT NULL DEFAULT '',
    confidence INTEGER NOT NULL DEFAULT 0,
    document JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_diagnosis_results_created_at ON diagnosis_results(created_at DESC);
`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.schemaReady = true
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, r *types.DiagnosisResult) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if r == nil || strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("result id is required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var label string
	var conf int
	if r.Diagnosis != nil {
		label = r.Diagnosis.Label
		conf = int(r.Diagnosis.Confidence)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO diagnosis_results (id, source, provider, label, confidence, document, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id)
DO UPDATE SET source=EXCLUDED.source, provider=EXCLUDED.provider, label=EXCLUDED.label,
  confidence=EXCLUDED.confidence, document=EXCLUDED.document
`, r.ID, r.Source, r.Provider, label, conf, doc, r.CreatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*types.DiagnosisResult, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM diagnosis_results WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r types.DiagnosisResult
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*types.DiagnosisResult, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM diagnosis_results ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*types.DiagnosisResult, 0, limit)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			continue
		}
		var r types.DiagnosisResult
		if err := json.Unmarshal(doc, &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
