package queue

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// queueSchema is recorded in SQLite's user_version header field. It changes
// whenever schema.sql does.
const queueSchema = 1

// initSchema creates the tables on an empty database and refuses to open one
// written by a different schema.
func (s *Store) initSchema(ctx context.Context) error {
	version, err := s.userVersion(ctx)
	if err != nil {
		return err
	}
	switch version {
	case queueSchema:
		return nil
	case 0:
		var tables int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'queue_records'",
		).Scan(&tables); err != nil {
			return fmt.Errorf("inspect queue tables: %w", err)
		}
		if tables == 0 {
			return s.applySchema(ctx)
		}
	}
	return fmt.Errorf("%w: %s is at version %d, this build expects %d; remove it and re-enqueue pending batches",
		ErrSchemaMismatch, s.path, version, queueSchema)
}

func (s *Store) userVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read queue schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applySchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply queue schema: %w", err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", queueSchema)); err != nil {
		return fmt.Errorf("stamp queue schema: %w", err)
	}
	return tx.Commit()
}
