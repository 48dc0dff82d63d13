package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/spotify-catalog-etl/internal/catalog"
)

// LoadError wraps a failed table write.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading table %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SnapshotRepository writes flat catalog rows to one table.
// The table must already exist with the catalog.Columns column set.
type SnapshotRepository struct {
	pool  *pgxpool.Pool
	table string
}

// Table returns the destination table name.
func (r *SnapshotRepository) Table() string {
	return r.table
}

// ReplaceAll discards every row in the table and inserts rows, in one
// transaction. Concurrent calls for the same table are serialized with a
// transaction-scoped advisory lock.
func (r *SnapshotRepository) ReplaceAll(ctx context.Context, rows []catalog.FlatRow) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, r.loadErr(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.table); err != nil {
		return 0, r.loadErr(fmt.Errorf("locking table: %w", err))
	}

	ident := pgx.Identifier{r.table}
	if _, err := tx.Exec(ctx, "DELETE FROM "+ident.Sanitize()); err != nil {
		return 0, r.loadErr(fmt.Errorf("clearing table: %w", err))
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = row.Values()
	}

	copied, err := tx.CopyFrom(ctx, ident, catalog.Columns, pgx.CopyFromRows(values))
	if err != nil {
		return 0, r.loadErr(fmt.Errorf("copying rows: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, r.loadErr(fmt.Errorf("committing transaction: %w", err))
	}
	return copied, nil
}

// Count returns the number of rows in the table.
func (r *SnapshotRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	query := "SELECT count(*) FROM " + pgx.Identifier{r.table}.Sanitize()
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows: %w", err)
	}
	return n, nil
}

func (r *SnapshotRepository) loadErr(err error) error {
	return &LoadError{Table: r.table, Err: err}
}
