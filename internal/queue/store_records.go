package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Enqueue inserts one pending record per package, in the order given.
// A package that already has a pending record in the batch is rejected
// and nothing is inserted.
func (s *Store) Enqueue(ctx context.Context, batch string, packages []string) ([]*Record, error) {
	ctx = ensureContext(ctx)
	batch = strings.TrimSpace(batch)
	if batch == "" {
		return nil, errors.New("enqueue: batch name required")
	}
	names := make([]string, 0, len(packages))
	seen := make(map[string]struct{}, len(packages))
	for _, pkg := range packages {
		pkg = strings.TrimSpace(pkg)
		if pkg == "" {
			continue
		}
		if _, dup := seen[pkg]; dup {
			continue
		}
		seen[pkg] = struct{}{}
		names = append(names, pkg)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("enqueue %s: no packages", batch)
	}

	var ids []int64
	err := retryOnBusy(ctx, func() error {
		ids = ids[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin enqueue tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		args := make([]any, 0, len(names)+1)
		args = append(args, batch)
		for _, name := range names {
			args = append(args, name)
		}
		var existing sql.NullString
		row := tx.QueryRowContext(ctx,
			`SELECT package FROM queue_records WHERE batch = ? AND terminal = 0 AND package IN (`+makePlaceholders(len(names))+`) LIMIT 1`,
			args...,
		)
		switch err := row.Scan(&existing); {
		case err == nil:
			return fmt.Errorf("%w: %s/%s", ErrAlreadyQueued, batch, existing.String)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check pending packages: %w", err)
		}

		for _, name := range names {
			ts := s.timestamp()
			res, err := tx.ExecContext(ctx,
				`INSERT INTO queue_records (batch, package, status, terminal, outcome, created_at, updated_at)
                 VALUES (?, ?, ?, 0, ?, ?, ?)`,
				batch, name, StatusQueued, OutcomePending, ts, ts,
			)
			if err != nil {
				return fmt.Errorf("insert %s: %w", name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			ids = append(ids, id)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetOne(ctx, Fields{ColID: id})
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// UpdateWhere applies patch to every record matching match and returns the
// number of rows written. updated_at is always refreshed.
func (s *Store) UpdateWhere(ctx context.Context, match, patch Fields) (int64, error) {
	if len(match) == 0 {
		return 0, ErrEmptyMatch
	}
	if len(patch) == 0 {
		return 0, nil
	}
	setClause, setArgs, err := patch.set()
	if err != nil {
		return 0, err
	}
	whereClause, whereArgs, err := match.where()
	if err != nil {
		return 0, err
	}
	args := append(setArgs, s.timestamp())
	args = append(args, whereArgs...)

	res, err := s.execWithRetry(ctx,
		`UPDATE queue_records SET `+setClause+`, updated_at = ?`+whereClause,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("update records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// GetOne returns the oldest record matching match, or nil when none does.
func (s *Store) GetOne(ctx context.Context, match Fields) (*Record, error) {
	records, err := s.query(ctx, match, Order{}, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// GetAll returns every record matching match in the requested order.
func (s *Store) GetAll(ctx context.Context, match Fields, order Order) ([]*Record, error) {
	return s.query(ctx, match, order, 0)
}

// GetByID fetches a record by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	return s.GetOne(ctx, Fields{ColID: id})
}

// NextPending returns the oldest non-terminal record of the batch by enqueue
// time, or nil when the batch is drained.
func (s *Store) NextPending(ctx context.Context, batch string) (*Record, error) {
	return s.GetOne(ctx, Fields{ColBatch: batch, ColTerminal: false})
}

// Delete removes every record matching match.
func (s *Store) Delete(ctx context.Context, match Fields) (int64, error) {
	if len(match) == 0 {
		return 0, ErrEmptyMatch
	}
	whereClause, args, err := match.where()
	if err != nil {
		return 0, err
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_records`+whereClause, args...)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, match Fields, order Order, limit int) ([]*Record, error) {
	ctx = ensureContext(ctx)
	whereClause, args, err := match.where()
	if err != nil {
		return nil, err
	}
	orderClause, err := order.clause()
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + recordColumns + ` FROM queue_records` + whereClause + orderClause
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
