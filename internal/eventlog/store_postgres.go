package eventlog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"veil/pkg/platform/sentinel"
	txcontext "veil/pkg/platform/tx"
)

// PostgresStore persists the event log. Expected table:
//
//	CREATE TABLE event_log (
//	    id            UUID PRIMARY KEY,
//	    event         TEXT NOT NULL,
//	    entity_type   TEXT NOT NULL,
//	    target_pk     TEXT NOT NULL,
//	    acting_user   TEXT NOT NULL DEFAULT '',
//	    error_message TEXT NOT NULL DEFAULT '',
//	    log_time      TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX event_log_target ON event_log (entity_type, target_pk, log_time);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO event_log (id, event, entity_type, target_pk, acting_user, error_message, log_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		string(entry.Event),
		entry.EntityType,
		entry.TargetPK,
		entry.ActingUser,
		entry.ErrorMessage,
		entry.LogTime,
	)
	if err != nil {
		return fmt.Errorf("append event log entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ForTarget(ctx context.Context, entityType, pk string) ([]Entry, error) {
	const query = `
		SELECT id, event, entity_type, target_pk, acting_user, error_message, log_time
		FROM event_log
		WHERE entity_type = $1 AND target_pk = $2
		ORDER BY log_time, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, entityType, pk)
	if err != nil {
		return nil, fmt.Errorf("query event log for %s pk=%s: %w", entityType, pk, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) All(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT id, event, entity_type, target_pk, acting_user, error_message, log_time
		FROM event_log
		ORDER BY log_time, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) AttachError(ctx context.Context, entityType, pk, message string) error {
	const query = `
		UPDATE event_log SET error_message = $3
		WHERE id = (
			SELECT id FROM event_log
			WHERE entity_type = $1 AND target_pk = $2
			ORDER BY log_time DESC, id DESC
			LIMIT 1
		)
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, entityType, pk, message)
	if err != nil {
		return fmt.Errorf("attach error to event log for %s pk=%s: %w", entityType, pk, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach error to event log for %s pk=%s: %w", entityType, pk, err)
	}
	if affected == 0 {
		return fmt.Errorf("no log entry for %s pk=%s to attach error to: %w", entityType, pk, sentinel.ErrNotFound)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var event string
		if err := rows.Scan(&e.ID, &event, &e.EntityType, &e.TargetPK, &e.ActingUser, &e.ErrorMessage, &e.LogTime); err != nil {
			return nil, fmt.Errorf("scan event log entry: %w", err)
		}
		e.Event = Event(event)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event log entries: %w", err)
	}
	return out, nil
}
