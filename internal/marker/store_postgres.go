package marker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	txcontext "veil/pkg/platform/tx"
)

// PostgresStore persists markers. Expected table:
//
//	CREATE TABLE anonymised (
//	    entity_type TEXT NOT NULL,
//	    target_pk   TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (entity_type, target_pk)
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, entityType, pk string) error {
	const query = `
		INSERT INTO anonymised (entity_type, target_pk, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_type, target_pk) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, entityType, pk, time.Now())
	if err != nil {
		return fmt.Errorf("create marker for %s pk=%s: %w", entityType, pk, err)
	}
	return nil
}

// CreateBatch inserts all markers with a single statement using unnest, so
// a bulk anonymisation run does one round trip instead of one per record.
func (s *PostgresStore) CreateBatch(ctx context.Context, markers []Marker) error {
	if len(markers) == 0 {
		return nil
	}
	types := make([]string, len(markers))
	pks := make([]string, len(markers))
	for i, m := range markers {
		types[i] = m.EntityType
		pks[i] = m.PK
	}
	const query = `
		INSERT INTO anonymised (entity_type, target_pk, created_at)
		SELECT t, p, $3 FROM unnest($1::text[], $2::text[]) AS u(t, p)
		ON CONFLICT (entity_type, target_pk) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, pq.Array(types), pq.Array(pks), time.Now())
	if err != nil {
		return fmt.Errorf("create marker batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, entityType, pk string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM anonymised WHERE entity_type = $1 AND target_pk = $2
		)
	`
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, entityType, pk).Scan(&exists); err != nil {
		return false, fmt.Errorf("check marker for %s pk=%s: %w", entityType, pk, err)
	}
	return exists, nil
}
